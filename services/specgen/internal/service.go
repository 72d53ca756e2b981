package internal

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/forge-ai/testgen/shared/apierr"
	"github.com/forge-ai/testgen/shared/apispec"
	"github.com/forge-ai/testgen/shared/events"
	"github.com/forge-ai/testgen/shared/granite"
	"github.com/forge-ai/testgen/shared/hub"
	"github.com/forge-ai/testgen/shared/metrics"
	"github.com/forge-ai/testgen/shared/prompt"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const serviceName = "specgen"

// Generator is the slice of *granite.Client the service needs.
type Generator interface {
	granite.Generator
	ModelID() string
	ProjectID() string
}

// Outcome is what a successful upload produces.
type Outcome struct {
	TestCases      string `json:"test_cases"`
	Filename       string `json:"filename"`
	APITitle       string `json:"api_title"`
	EndpointsCount int    `json:"endpoints_count"`
}

// Service turns uploaded API specifications into JUnit test classes.
type Service struct {
	cfg     Config
	gen     Generator
	store   *Store
	hub     *hub.Hub
	emit    *events.Emitter
	metrics *metrics.Collector
}

// New wires the service. pub may be nil when no broker is configured.
func New(cfg Config, gen Generator, store *Store, m *metrics.Collector, pub events.Publisher) *Service {
	h := hub.New()
	return &Service{
		cfg:     cfg,
		gen:     gen,
		store:   store,
		hub:     h,
		emit:    events.NewEmitter(serviceName, h, pub),
		metrics: m,
	}
}

// Run serves HTTP and the live feed until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.hub.Run(ctx) })
	g.Go(func() error { return s.serveAPI(ctx) })
	return g.Wait()
}

// Generate runs one upload through parse, prompt, inference and storage.
// The upload is kept on disk only for the duration of the call; the test
// file is written only once generation succeeded.
func (s *Service) Generate(ctx context.Context, requestID, filename string, content []byte) (*Outcome, error) {
	start := time.Now()
	s.emit.Emit(ctx, events.GenerationRequested, events.GenerationRequestedPayload{
		RequestID: requestID,
		Service:   serviceName,
		Source:    events.SourceSpec,
		Input:     filename,
	})

	out, err := s.generate(ctx, requestID, filename, content)
	if err != nil {
		kind := string(apierr.KindOf(err))
		s.metrics.RecordGeneration(events.SourceSpec, metrics.OutcomeFailure, kind, time.Since(start))
		s.emit.Log(ctx, requestID, "error", "generate", "generation failed: "+err.Error(), map[string]any{"kind": kind})
		s.emit.Emit(ctx, events.GenerationFailed, events.GenerationFailedPayload{
			RequestID: requestID,
			Service:   serviceName,
			Source:    events.SourceSpec,
			Kind:      kind,
			Error:     err.Error(),
		})
		return nil, err
	}

	took := time.Since(start)
	s.metrics.RecordGeneration(events.SourceSpec, metrics.OutcomeSuccess, "", took)
	s.emit.Emit(ctx, events.GenerationComplete, events.GenerationCompletePayload{
		RequestID:      requestID,
		Service:        serviceName,
		Source:         events.SourceSpec,
		Model:          s.gen.ModelID(),
		Title:          out.APITitle,
		EndpointsCount: out.EndpointsCount,
		Filename:       out.Filename,
		OutputChars:    len(out.TestCases),
		DurationMs:     took.Milliseconds(),
	})
	return out, nil
}

func (s *Service) generate(ctx context.Context, requestID, filename string, content []byte) (*Outcome, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if !apispec.SupportedFormat(ext) {
		return nil, apierr.New(apierr.Validation, "Invalid file type. Please upload JSON, YAML, or YML files.")
	}

	path, err := s.store.SaveUpload(filename, bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}
	defer func() {
		if err := s.store.RemoveUpload(path); err != nil {
			log.Warn().Err(err).Str("file", path).Msg("remove upload")
		}
	}()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}

	desc, err := apispec.Parse(raw, ext)
	if err != nil {
		return nil, err
	}
	s.emit.Log(ctx, requestID, "info", "parsed",
		fmt.Sprintf("%s: %d endpoints, %d schemas", desc.Title, len(desc.Endpoints), len(desc.Schemas)), nil)

	res, err := s.gen.Generate(ctx, prompt.FromDescriptor(*desc), granite.SpecParams())
	if err != nil {
		return nil, err
	}
	log.Debug().
		Str("request", requestID).
		Int("input_tokens", res.InputTokens).
		Int("generated_tokens", res.GeneratedTokens).
		Str("stop_reason", res.StopReason).
		Msg("generation finished")

	name, err := s.store.SaveTests(desc.Title, res.Text)
	if err != nil {
		return nil, fmt.Errorf("save tests: %w", err)
	}
	log.Info().Str("request", requestID).Str("file", name).Msg("tests written")

	return &Outcome{
		TestCases:      res.Text,
		Filename:       name,
		APITitle:       desc.Title,
		EndpointsCount: len(desc.Endpoints),
	}, nil
}

// Probe runs a short generation to prove credentials and model work.
func (s *Service) Probe(ctx context.Context) (string, error) {
	return granite.Probe(ctx, s.gen)
}

func (s *Service) Handler() http.Handler {
	return s.routes()
}
