// Package apispec turns an OpenAPI 3 or Swagger 2 document into the flat
// Descriptor the prompt builder renders. Map order from the source document
// is preserved so the same file always produces the same prompt.
package apispec

import (
	"strings"
)

// Descriptor is the normalized view of an API.
type Descriptor struct {
	Title       string     `json:"title"`
	Version     string     `json:"version"`
	Description string     `json:"description"`
	BaseURL     string     `json:"base_url"`
	Endpoints   []Endpoint `json:"endpoints"`
	Schemas     []Schema   `json:"schemas"`
}

type Endpoint struct {
	Method      string      `json:"method"`
	Path        string      `json:"path"`
	Summary     string      `json:"summary,omitempty"`
	OperationID string      `json:"operation_id,omitempty"`
	Parameters  []Parameter `json:"parameters"`
	// Responses holds the status code keys ("200", "404", "default").
	Responses []string `json:"responses"`
}

// Parameter is keyed by name and location so operation-level entries can
// override path-level ones.
type Parameter struct {
	Name string `json:"name"`
	In   string `json:"in"`
}

type Schema struct {
	Name       string     `json:"name"`
	Properties []Property `json:"properties"`
}

type Property struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Formats lists the accepted file extensions.
var Formats = []string{"json", "yaml", "yml"}

// SupportedFormat reports whether ext (with or without the leading dot) is
// one of Formats.
func SupportedFormat(ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, f := range Formats {
		if f == ext {
			return true
		}
	}
	return false
}
