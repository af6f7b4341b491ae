package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"time"
)

// HTTPMiddleware wraps an HTTP handler to collect request metrics.
// It records request count, duration, and tracks in-flight requests.
func HTTPMiddleware(m *Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		m.RecordHTTP(r.Method, r.URL.Path, wrapped.statusCode, time.Since(start).Seconds())
	})
}

// Handler returns an HTTP handler serving the Prometheus exposition.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(m.PrometheusFormat()))
	})
}

// ServeHTTP implements http.Handler.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.Handler().ServeHTTP(w, r)
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (w *responseWriter) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(w.statusCode)
	}
	return w.ResponseWriter.Write(b)
}

// Flush implements http.Flusher if the underlying writer supports it.
func (w *responseWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack implements http.Hijacker if the underlying writer supports it.
func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("underlying ResponseWriter does not support hijacking")
}

var (
	runIDPattern   = regexp.MustCompile(`^/v1/runs/[^/]+$`)
	datasetPattern = regexp.MustCompile(`^/v1/datasets/[^/]+`)
)

// normalizePath collapses path parameters to keep label cardinality low.
//
// Examples:
//   - /v1/runs/0b25...e1 -> /v1/runs/{id}
//   - /v1/datasets/roxford5k -> /v1/datasets/{name}
func normalizePath(path string) string {
	switch path {
	case "/", "/healthz", "/readyz", "/version", "/metrics":
		return path
	case "/v1/evaluate", "/v1/runs", "/v1/datasets":
		return path
	}

	if runIDPattern.MatchString(path) {
		return "/v1/runs/{id}"
	}
	if datasetPattern.MatchString(path) {
		return "/v1/datasets/{name}"
	}

	return path
}

// statusCode converts an HTTP status to a metric label, grouping
// uncommon codes into classes to keep cardinality low.
func statusCode(code int) string {
	switch code {
	case 200:
		return "200"
	case 201:
		return "201"
	case 204:
		return "204"
	case 400:
		return "400"
	case 401:
		return "401"
	case 403:
		return "403"
	case 404:
		return "404"
	case 405:
		return "405"
	case 429:
		return "429"
	case 500:
		return "500"
	case 502:
		return "502"
	case 503:
		return "503"
	}

	switch {
	case code >= 100 && code < 200:
		return "1xx"
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	}

	return strconv.Itoa(code)
}
