// Package web holds the HTTP plumbing both front-ends share: JSON replies,
// CORS and access logging.
package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/forge-ai/testgen/shared/apierr"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const RequestIDHeader = "X-Request-ID"

func JSON(w http.ResponseWriter, v any, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// Err replies {"success": false, "error": msg}.
func Err(w http.ResponseWriter, msg string, code int) {
	JSON(w, map[string]any{"success": false, "error": msg}, code)
}

// Fail maps err onto a status code and replies with its message and kind.
// The wrapped cause is only included when debug is set.
func Fail(w http.ResponseWriter, err error, debug bool) {
	body := map[string]any{
		"success": false,
		"error":   err.Error(),
		"kind":    string(apierr.KindOf(err)),
	}
	var ae *apierr.Error
	if errors.As(err, &ae) {
		body["error"] = ae.Msg
		if debug && ae.Err != nil {
			body["details"] = ae.Err.Error()
		}
	}
	JSON(w, body, apierr.HTTPStatus(err))
}

func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(204)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Recorder receives one observation per finished request.
type Recorder interface {
	RecordHTTPRequest(method, path string, statusCode int, d time.Duration)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController and the WebSocket upgrader reach the
// underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// AccessLog tags every request with an X-Request-ID, logs it when it
// finishes and reports it to rec (which may be nil). Metrics use the route
// pattern, not the raw path, to keep label cardinality bounded.
func AccessLog(rec Recorder, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
			r.Header.Set(RequestIDHeader, id)
		}
		w.Header().Set(RequestIDHeader, id)

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		elapsed := time.Since(start)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		log.Info().
			Str("request_id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Dur("took", elapsed).
			Msg("request")
		if rec != nil {
			rec.RecordHTTPRequest(r.Method, route, sw.status, elapsed)
		}
	})
}

// RequestID returns the id AccessLog assigned to r.
func RequestID(r *http.Request) string {
	return r.Header.Get(RequestIDHeader)
}

func EnvOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func EnvInt64(k string, def int64) int64 {
	if v := os.Getenv(k); v != "" {
		n, _ := strconv.ParseInt(v, 10, 64)
		if n > 0 {
			return n
		}
	}
	return def
}

func EnvDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
