// Package scanner gives a rough structural summary of pasted controller code.
// It matches annotation substrings line by line and never parses the source.
package scanner

import "strings"

var mappingAnnotations = []string{
	"@GetMapping",
	"@PostMapping",
	"@PutMapping",
	"@DeleteMapping",
	"@PatchMapping",
}

type Analysis struct {
	EndpointCount    int      `json:"endpoint_count"`
	Endpoints        []string `json:"endpoints"`
	HasPathVariables bool     `json:"has_path_variables"`
	HasRequestBody   bool     `json:"has_request_body"`
	HasValidation    bool     `json:"has_validation"`
}

// Analyze reports the trimmed lines carrying a request-mapping annotation,
// plus a few feature flags. Annotations inside comments or strings count too.
func Analyze(code string) Analysis {
	a := Analysis{Endpoints: []string{}}
	for _, line := range strings.Split(code, "\n") {
		line = strings.TrimSpace(line)
		for _, ann := range mappingAnnotations {
			if strings.Contains(line, ann) {
				a.Endpoints = append(a.Endpoints, line)
				break
			}
		}
	}
	a.EndpointCount = len(a.Endpoints)
	a.HasPathVariables = strings.Contains(code, "{") && strings.Contains(code, "}")
	a.HasRequestBody = strings.Contains(code, "@RequestBody")
	a.HasValidation = strings.Contains(code, "@Valid")
	return a
}
