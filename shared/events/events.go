// Package events defines the messages the front-ends emit while serving a
// generation request. The same envelope goes to the WebSocket feed and to
// the RabbitMQ exchange, so consumers never talk to a service directly.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ── Routing keys (RabbitMQ topic exchange: testgen.events) ───────────────────
const (
	GenerationRequested = "generation.requested"
	GenerationComplete  = "generation.complete"
	GenerationFailed    = "generation.failed"
	LogEvent            = "log.event"

	// GenerationOutcomes matches complete and failed, plus requested.
	GenerationOutcomes = "generation.*"
)

// Sources of a generation request.
const (
	SourceSpec = "spec"
	SourceCode = "code"
)

// ── Envelope wraps every message ─────────────────────────────────────────────

type Envelope struct {
	ID         string          `json:"id"`
	RoutingKey string          `json:"routing_key"`
	Timestamp  time.Time       `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}

func Wrap(routingKey string, payload any) ([]byte, error) {
	p, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		ID:         uuid.New().String(),
		RoutingKey: routingKey,
		Timestamp:  time.Now(),
		Payload:    p,
	})
}

func Unwrap[T any](raw []byte) (*T, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	var t T
	return &t, json.Unmarshal(env.Payload, &t)
}


// ── Payload types ─────────────────────────────────────────────────────────────

type GenerationRequestedPayload struct {
	RequestID string `json:"request_id"`
	Service   string `json:"service"`
	Source    string `json:"source"`
	// Input is the uploaded filename, or the size of pasted code.
	Input string `json:"input"`
}

type GenerationCompletePayload struct {
	RequestID      string `json:"request_id"`
	Service        string `json:"service"`
	Source         string `json:"source"`
	Model          string `json:"model"`
	Title          string `json:"title,omitempty"`
	EndpointsCount int    `json:"endpoints_count"`
	Filename       string `json:"filename,omitempty"`
	OutputChars    int    `json:"output_chars"`
	DurationMs     int64  `json:"duration_ms"`
}

type GenerationFailedPayload struct {
	RequestID string `json:"request_id"`
	Service   string `json:"service"`
	Source    string `json:"source"`
	Kind      string `json:"kind"`
	Error     string `json:"error"`
}

type LogEventPayload struct {
	RequestID string         `json:"request_id"`
	Level     string         `json:"level"`
	Step      string         `json:"step"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}
