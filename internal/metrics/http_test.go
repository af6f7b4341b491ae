package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPMiddleware(t *testing.T) {
	m := New()
	defer m.Close()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("test response"))
	})

	wrapped := HTTPMiddleware(m, handler)

	req := httptest.NewRequest("GET", "/v1/runs/0c9f4a7e", nil)
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	// The path is normalized before it becomes a label value
	if got := m.HTTPRequests.WithLabels("GET", "/v1/runs/{id}", "200").Value(); got != 1 {
		t.Errorf("expected 1 recorded request, got %d", got)
	}

	if got := m.HTTPDuration.WithLabels("GET", "/v1/runs/{id}").Count(); got != 1 {
		t.Errorf("expected 1 duration observation, got %d", got)
	}

	if m.HTTPRequestsInFlight.Value() != 0 {
		t.Errorf("expected in-flight requests to be 0, got %f", m.HTTPRequestsInFlight.Value())
	}
}

func TestHTTPMiddlewareErrorStatus(t *testing.T) {
	m := New()
	defer m.Close()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such run", http.StatusNotFound)
	})

	wrapped := HTTPMiddleware(m, handler)

	req := httptest.NewRequest("GET", "/v1/runs/missing", nil)
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	if got := m.HTTPRequests.WithLabels("GET", "/v1/runs/{id}", "404").Value(); got != 1 {
		t.Errorf("expected 1 recorded 404, got %d", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	defer m.Close()
	m.RecordEvaluation("roxford5k", "exact", 1000, nil)

	handler := m.Handler()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	contentType := rec.Header().Get("Content-Type")
	if !strings.Contains(contentType, "version=0.0.4") {
		t.Errorf("unexpected content type %q", contentType)
	}

	if !strings.Contains(rec.Body.String(), "irbench_evaluations_total") {
		t.Error("expected body to contain evaluation counter")
	}

	// Only GET is allowed
	req = httptest.NewRequest("POST", "/metrics", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405 for POST, got %d", rec.Code)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "static root",
			input:    "/",
			expected: "/",
		},
		{
			name:     "health endpoint",
			input:    "/healthz",
			expected: "/healthz",
		},
		{
			name:     "metrics endpoint",
			input:    "/metrics",
			expected: "/metrics",
		},
		{
			name:     "evaluate endpoint",
			input:    "/v1/evaluate",
			expected: "/v1/evaluate",
		},
		{
			name:     "runs collection",
			input:    "/v1/runs",
			expected: "/v1/runs",
		},
		{
			name:     "run with id",
			input:    "/v1/runs/0c9f4a7e-3b1d-4a2f-9c8e-1f2a3b4c5d6e",
			expected: "/v1/runs/{id}",
		},
		{
			name:     "dataset with name",
			input:    "/v1/datasets/roxford5k",
			expected: "/v1/datasets/{name}",
		},
		{
			name:     "unknown path passthrough",
			input:    "/v1/other/thing",
			expected: "/v1/other/thing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := normalizePath(tt.input)
			if result != tt.expected {
				t.Errorf("normalizePath(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		code     int
		expected string
	}{
		{200, "200"},
		{201, "201"},
		{404, "404"},
		{429, "429"},
		{500, "500"},
		{503, "503"},
		{150, "1xx"},
		{250, "2xx"},
		{350, "3xx"},
		{450, "4xx"},
		{550, "5xx"},
		{999, "999"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := statusCode(tt.code)
			if result != tt.expected {
				t.Errorf("statusCode(%d) = %q, want %q", tt.code, result, tt.expected)
			}
		})
	}
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	wrapped := &responseWriter{
		ResponseWriter: rec,
		statusCode:     http.StatusOK,
	}

	wrapped.WriteHeader(http.StatusCreated)
	if wrapped.statusCode != http.StatusCreated {
		t.Errorf("expected status 201, got %d", wrapped.statusCode)
	}

	// Write without an explicit WriteHeader keeps the default status
	wrapped2 := &responseWriter{
		ResponseWriter: httptest.NewRecorder(),
		statusCode:     http.StatusOK,
	}
	wrapped2.Write([]byte("test"))
	if !wrapped2.written {
		t.Error("expected written flag to be true")
	}
	if wrapped2.statusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", wrapped2.statusCode)
	}
}

func BenchmarkHTTPMiddleware(b *testing.B) {
	m := New()
	defer m.Close()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	wrapped := HTTPMiddleware(m, handler)

	req := httptest.NewRequest("GET", "/v1/evaluate", nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)
	}
}

func BenchmarkNormalizePath(b *testing.B) {
	paths := []string{
		"/v1/evaluate",
		"/v1/runs/0c9f4a7e-3b1d-4a2f-9c8e-1f2a3b4c5d6e",
		"/v1/datasets/roxford5k",
		"/healthz",
		"/metrics",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, path := range paths {
			_ = normalizePath(path)
		}
	}
}
