package internal

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/forge-ai/testgen/shared/apierr"
	"github.com/forge-ai/testgen/shared/scanner"
	"github.com/forge-ai/testgen/shared/web"
	"github.com/rs/zerolog/log"
)

//go:embed templates/index.html
var templates embed.FS

var page = template.Must(template.ParseFS(templates, "templates/index.html"))

type pageData struct {
	APICode        string
	Error          string
	GeneratedTests string
	Analysis       *scanner.Analysis
	Model          string
}

func (s *Service) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /{$}", s.handleForm)
	mux.HandleFunc("POST /api/generate", s.handleAPIGenerate)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("/ws", s.hub.ServeWS)

	return web.CORS(web.AccessLog(s.metrics, mux))
}

func (s *Service) serveAPI(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.routes(),
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      s.cfg.GraniteTimeout + s.cfg.IAMTimeout + 15*time.Second,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	log.Info().Str("port", s.cfg.Port).Bool("ready", s.Ready()).Msg("codegen listening")
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Service) render(w http.ResponseWriter, data pageData, code int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	if err := page.Execute(w, data); err != nil {
		log.Error().Err(err).Msg("render page")
	}
}

func (s *Service) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, pageData{}, 200)
}

func (s *Service) handleForm(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := r.ParseForm(); err != nil {
		bad := s.bodyError(err)
		s.render(w, pageData{Error: bad.Msg}, apierr.HTTPStatus(bad))
		return
	}
	code := r.PostFormValue("api_code")

	out, err := s.Generate(r.Context(), web.RequestID(r), code)
	if err != nil {
		msg := "Error generating test cases: " + err.Error()
		switch apierr.KindOf(err) {
		case apierr.Validation:
			msg = "Please provide API code to analyze"
		case apierr.Config:
			msg = errNotInitialized.Msg
		}
		s.render(w, pageData{APICode: code, Error: msg}, apierr.HTTPStatus(err))
		return
	}

	s.render(w, pageData{
		APICode:        code,
		GeneratedTests: out.GeneratedTests,
		Analysis:       &out.Analysis,
		Model:          out.Model,
	}, 200)
}

func (s *Service) handleAPIGenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		APICode string `json:"api_code"`
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		web.Fail(w, s.bodyError(err), s.cfg.Debug)
		return
	}

	out, err := s.Generate(r.Context(), web.RequestID(r), req.APICode)
	if err != nil {
		web.Fail(w, err, s.cfg.Debug)
		return
	}

	web.JSON(w, map[string]any{
		"success":         true,
		"generated_tests": out.GeneratedTests,
		"api_analysis":    out.Analysis,
		"model_used":      out.Model,
	}, 200)
}

// bodyError turns a failed body read into a Validation error, naming the
// size limit when it was the cause.
func (s *Service) bodyError(err error) *apierr.Error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apierr.Wrap(apierr.Validation, err, fmt.Sprintf("Input too large: limit is %d bytes", tooLarge.Limit))
	}
	return apierr.Wrap(apierr.Validation, err, "invalid body")
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"granite_client": s.Ready(),
		"model":          s.model,
		"environment":    s.cfg.AppEnv,
	}
	reply, err := s.Probe(r.Context())
	if err != nil {
		log.Warn().Err(err).Msg("health probe failed")
		body["status"] = "unhealthy"
		body["error"] = err.Error()
		web.JSON(w, body, 500)
		return
	}
	body["status"] = "healthy"
	body["project_id"] = s.gen.ProjectID()
	body["test_response"] = reply
	web.JSON(w, body, 200)
}
