package granite

import (
	"context"
	"strings"
)

const (
	ProbePrompt = "Hello, respond with 'OK' if you can process this request."

	maxProbeReply = 200
)

// Generator is implemented by *Client. Front-ends depend on it so tests can
// substitute a fake model.
type Generator interface {
	Generate(ctx context.Context, prompt string, params Params) (*Result, error)
}

// Probe runs a short generation to prove the credentials, token exchange
// and model all work. The reply is trimmed and capped at 200 characters.
func Probe(ctx context.Context, g Generator) (string, error) {
	res, err := g.Generate(ctx, ProbePrompt, ProbeParams())
	if err != nil {
		return "", err
	}
	reply := []rune(strings.TrimSpace(res.Text))
	if len(reply) > maxProbeReply {
		reply = reply[:maxProbeReply]
	}
	return string(reply), nil
}
