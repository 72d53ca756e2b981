package granite

// Params are the generation settings sent with every prompt.
type Params struct {
	DecodingMethod    string   `json:"decoding_method"`
	MaxNewTokens      int      `json:"max_new_tokens"`
	Temperature       float64  `json:"temperature"`
	TopP              *float64 `json:"top_p,omitempty"`
	RepetitionPenalty *float64 `json:"repetition_penalty,omitempty"`
	StopSequences     []string `json:"stop_sequences,omitempty"`
}

// SpecParams are used for prompts built from an uploaded specification.
func SpecParams() Params {
	return Params{
		DecodingMethod: "greedy",
		MaxNewTokens:   3000,
		Temperature:    0.1,
		StopSequences:  []string{"</code>", "---END---"},
	}
}

// SourceParams are used for prompts built from pasted source code.
func SourceParams() Params {
	return Params{
		DecodingMethod:    "greedy",
		MaxNewTokens:      3000,
		Temperature:       0.2,
		TopP:              ptr(0.9),
		RepetitionPenalty: ptr(1.1),
		StopSequences:     []string{"```"},
	}
}

// ProbeParams keep liveness round trips short.
func ProbeParams() Params {
	return Params{
		DecodingMethod: "greedy",
		MaxNewTokens:   50,
		Temperature:    0.3,
	}
}

func ptr(v float64) *float64 { return &v }
