package internal

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/forge-ai/testgen/shared/apierr"
	"github.com/forge-ai/testgen/shared/events"
	"github.com/forge-ai/testgen/shared/granite"
	"github.com/forge-ai/testgen/shared/hub"
	"github.com/forge-ai/testgen/shared/metrics"
	"github.com/forge-ai/testgen/shared/prompt"
	"github.com/forge-ai/testgen/shared/scanner"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const serviceName = "codegen"

type Generator interface {
	granite.Generator
	ModelID() string
	ProjectID() string
}

// Outcome is the result of one pasted-code generation.
type Outcome struct {
	GeneratedTests string           `json:"generated_tests"`
	Analysis       scanner.Analysis `json:"api_analysis"`
	Model          string           `json:"model_used"`
}

// Service generates RestAssured tests from pasted controller code. It can
// run without a generator; every generation then fails with a ConfigError.
type Service struct {
	cfg     Config
	gen     Generator
	model   string
	hub     *hub.Hub
	emit    *events.Emitter
	metrics *metrics.Collector
}

// New wires the service. gen may be nil (degraded mode); model is reported
// by /health either way. pub may be nil when no broker is configured.
func New(cfg Config, gen Generator, model string, m *metrics.Collector, pub events.Publisher) *Service {
	h := hub.New()
	return &Service{
		cfg:     cfg,
		gen:     gen,
		model:   model,
		hub:     h,
		emit:    events.NewEmitter(serviceName, h, pub),
		metrics: m,
	}
}

func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.hub.Run(ctx) })
	g.Go(func() error { return s.serveAPI(ctx) })
	return g.Wait()
}

func (s *Service) Ready() bool { return s.gen != nil }

var errNotInitialized = apierr.New(apierr.Config, "Granite client not initialized. Check your environment variables.")

// Generate analyses code and asks the model for a test class. Surrounding
// whitespace is trimmed; blank input is a ValidationError.
func (s *Service) Generate(ctx context.Context, requestID, code string) (*Outcome, error) {
	start := time.Now()
	s.emit.Emit(ctx, events.GenerationRequested, events.GenerationRequestedPayload{
		RequestID: requestID,
		Service:   serviceName,
		Source:    events.SourceCode,
		Input:     fmt.Sprintf("%d bytes", len(code)),
	})

	out, err := s.generate(ctx, requestID, code)
	if err != nil {
		kind := string(apierr.KindOf(err))
		s.metrics.RecordGeneration(events.SourceCode, metrics.OutcomeFailure, kind, time.Since(start))
		s.emit.Emit(ctx, events.GenerationFailed, events.GenerationFailedPayload{
			RequestID: requestID,
			Service:   serviceName,
			Source:    events.SourceCode,
			Kind:      kind,
			Error:     err.Error(),
		})
		return nil, err
	}

	took := time.Since(start)
	s.metrics.RecordGeneration(events.SourceCode, metrics.OutcomeSuccess, "", took)
	s.emit.Emit(ctx, events.GenerationComplete, events.GenerationCompletePayload{
		RequestID:      requestID,
		Service:        serviceName,
		Source:         events.SourceCode,
		Model:          out.Model,
		EndpointsCount: out.Analysis.EndpointCount,
		OutputChars:    len(out.GeneratedTests),
		DurationMs:     took.Milliseconds(),
	})
	return out, nil
}

func (s *Service) generate(ctx context.Context, requestID, code string) (*Outcome, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apierr.New(apierr.Validation, "API code is required")
	}
	if s.gen == nil {
		return nil, errNotInitialized
	}

	analysis := scanner.Analyze(code)
	s.emit.Log(ctx, requestID, "info", "analyzed",
		fmt.Sprintf("%d endpoint annotations found", analysis.EndpointCount), map[string]any{
			"path_variables": analysis.HasPathVariables,
			"request_body":   analysis.HasRequestBody,
			"validation":     analysis.HasValidation,
		})

	res, err := s.gen.Generate(ctx, prompt.FromSource(code), granite.SourceParams())
	if err != nil {
		log.Error().Err(err).Str("request", requestID).Msg("generation failed")
		return nil, err
	}
	log.Debug().
		Str("request", requestID).
		Int("input_tokens", res.InputTokens).
		Int("generated_tokens", res.GeneratedTokens).
		Msg("generation finished")

	return &Outcome{
		GeneratedTests: res.Text,
		Analysis:       analysis,
		Model:          s.model,
	}, nil
}

func (s *Service) Probe(ctx context.Context) (string, error) {
	if s.gen == nil {
		return "", errNotInitialized
	}
	return granite.Probe(ctx, s.gen)
}

func (s *Service) Handler() http.Handler {
	return s.routes()
}
