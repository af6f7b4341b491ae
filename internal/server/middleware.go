package server

import (
	"net/http"
	"strings"
	"time"

	apperrors "github.com/irbench/ir-bench/internal/pkg/errors"
	"github.com/irbench/ir-bench/internal/pkg/reqctx"
)

// statusRecorder captures the response status for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// recoveryMiddleware turns handler panics into 500 responses instead of
// taking the whole server down.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.log.Error("Panic recovered in HTTP handler",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path,
				)
				// Sanitized message, internals stay in the log.
				apperrors.WriteError(w, apperrors.InternalError("an unexpected error occurred", nil))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requestIDMiddleware tags every request with a short ID, echoed in the
// X-Request-ID header, and lifts the caller's X-Connection-ID into the
// context for the request log.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := reqctx.NewRequestID()
		ctx := reqctx.WithRequestID(r.Context(), id)
		if conn := r.Header.Get("X-Connection-ID"); conn != "" {
			ctx = reqctx.WithConnectionID(ctx, conn)
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// corsMiddleware answers preflight requests and sets the allowed origins
// from configuration.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	allowAll := s.app.Security.CORSOrigins == "" || s.app.Security.CORSOrigins == "*"
	var allowed []string
	if !allowAll {
		for _, o := range strings.Split(s.app.Security.CORSOrigins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				allowed = append(allowed, o)
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := "*"
		if !allowAll {
			origin = ""
			reqOrigin := r.Header.Get("Origin")
			for _, o := range allowed {
				if o == reqOrigin {
					origin = reqOrigin
					break
				}
			}
		}
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Connection-ID")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs every request with its status and duration.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		fields := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
			"request_id", reqctx.RequestID(r.Context()),
		}
		if conn := reqctx.ConnectionID(r.Context()); conn != "" {
			fields = append(fields, "connection_id", conn)
		}
		s.log.Debug("HTTP request", fields...)
	})
}

// inFlightMiddleware counts active requests for the shutdown drain.
func (s *Server) inFlightMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.inFlight.Add(1)
		defer s.inFlight.Add(-1)
		next.ServeHTTP(w, r)
	})
}
