package internal

import (
	"context"
	"embed"
	"errors"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/forge-ai/testgen/shared/apierr"
	"github.com/forge-ai/testgen/shared/web"
	"github.com/rs/zerolog/log"
)

//go:embed static/index.html
var static embed.FS

// multipart parts above this size spill to temp files.
const maxMemory = 4 << 20

func (s *Service) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /generate", s.handleGenerate)
	mux.HandleFunc("GET /download/{filename}", s.handleDownload)
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
		// Generation can take as long as the inference timeout.
		WriteTimeout: s.cfg.GraniteTimeout + s.cfg.IAMTimeout + 15*time.Second,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	log.Info().Str("port", s.cfg.Port).Msg("specgen listening")
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Service) handleIndex(w http.ResponseWriter, r *http.Request) {
	page, err := static.ReadFile("static/index.html")
	if err != nil {
		web.Err(w, "page unavailable", 500)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

func (s *Service) handleGenerate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			web.Fail(w, apierr.New(apierr.Validation, "File too large: limit is %d bytes", tooBig.Limit), s.cfg.Debug)
			return
		}
		web.Fail(w, apierr.Wrap(apierr.Validation, err, "No file uploaded"), s.cfg.Debug)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		// A part named "file" with an empty filename arrives as a plain value.
		if _, ok := r.MultipartForm.Value["file"]; ok {
			web.Fail(w, apierr.New(apierr.Validation, "No file selected"), s.cfg.Debug)
			return
		}
		web.Fail(w, apierr.New(apierr.Validation, "No file uploaded"), s.cfg.Debug)
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		web.Fail(w, apierr.Wrap(apierr.Validation, err, "Could not read upload"), s.cfg.Debug)
		return
	}

	out, err := s.Generate(r.Context(), web.RequestID(r), header.Filename, content)
	if err != nil {
		log.Error().Err(err).Str("file", header.Filename).Msg("generation failed")
		web.Fail(w, err, s.cfg.Debug)
		return
	}

	web.JSON(w, map[string]any{
		"success":         true,
		"test_cases":      out.TestCases,
		"filename":        out.Filename,
		"api_title":       out.APITitle,
		"endpoints_count": out.EndpointsCount,
	}, 200)
}

func (s *Service) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")
	f, info, err := s.store.Open(name)
	if err != nil {
		web.Fail(w, err, s.cfg.Debug)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Type", "text/x-java-source; charset=utf-8")
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	reply, err := s.Probe(r.Context())
	if err != nil {
		log.Warn().Err(err).Msg("health probe failed")
		web.JSON(w, map[string]any{"status": "unhealthy", "error": err.Error()}, 500)
		return
	}
	web.JSON(w, map[string]any{
		"status":        "healthy",
		"model":         s.gen.ModelID(),
		"project_id":    s.gen.ProjectID(),
		"test_response": reply,
	}, 200)
}
