// Package server assembles the ir-bench HTTP daemon: the evaluation API,
// health and readiness probes, metrics exposition and the middleware
// stack around them.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/irbench/ir-bench/internal/config"
	"github.com/irbench/ir-bench/internal/evaluation"
	"github.com/irbench/ir-bench/internal/metrics"
	"github.com/irbench/ir-bench/internal/pkg/logger"
	"github.com/irbench/ir-bench/internal/pkg/middleware"
	"github.com/irbench/ir-bench/internal/qdrant"
)

// Config configures the server.
type Config struct {
	// Host is the address to bind to.
	Host string

	// Port is the HTTP port.
	Port int

	// Version is the application version.
	Version string

	// Commit is the git commit the binary was built from.
	Commit string

	// BuildDate is the build timestamp.
	BuildDate string

	// ReadTimeout is the HTTP read timeout.
	ReadTimeout time.Duration

	// WriteTimeout is the HTTP write timeout.
	WriteTimeout time.Duration

	// ShutdownTimeout is the graceful shutdown timeout.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns sensible server defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		Version:         "dev",
		Commit:          "none",
		BuildDate:       "unknown",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    10 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Server is the ir-bench HTTP daemon.
type Server struct {
	cfg Config
	app config.Config
	log *logger.Logger

	evalHandler *evaluation.Handler
	metrics     *metrics.Metrics
	qdrant      *qdrant.Client
	rateLimiter *middleware.RateLimiter

	httpServer *http.Server
	ready      atomic.Bool
	inFlight   atomic.Int64

	mu      sync.Mutex
	started bool
}

// New assembles a server over already-constructed services. The metrics
// and qdrant client are optional; without metrics the /metrics and
// /v1/stats endpoints are absent, without qdrant readiness skips the
// vector-store probe.
func New(cfg Config, appCfg config.Config, evalHandler *evaluation.Handler, m *metrics.Metrics, qc *qdrant.Client, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	s := &Server{
		cfg:         cfg,
		app:         appCfg,
		log:         log.WithComponent("server"),
		evalHandler: evalHandler,
		metrics:     m,
		qdrant:      qc,
	}

	if appCfg.Security.RateLimit > 0 {
		s.rateLimiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
			RequestsPerSecond: float64(appCfg.Security.RateLimit),
			Burst:             appCfg.Security.RateLimit * 2,
			CleanupInterval:   time.Minute,
		})
		s.log.Info("Rate limiting enabled", "requests_per_second", appCfg.Security.RateLimit)
	}

	return s
}

// Handler returns the full route set wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.HandleFunc("GET /v1/version", s.handleVersion)

	if s.evalHandler != nil {
		s.evalHandler.RegisterRoutes(mux)
	}

	if s.metrics != nil && s.app.Metrics.Enabled {
		path := s.app.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, s.metrics.Handler())
	}

	// Innermost first: in-flight accounting sits directly on the mux so
	// the drain counter sees exactly the requests the handlers see.
	handler := http.Handler(mux)
	handler = s.inFlightMiddleware(handler)
	if s.metrics != nil {
		handler = metrics.HTTPMiddleware(s.metrics, handler)
	}
	handler = s.loggingMiddleware(handler)
	handler = s.corsMiddleware(handler)
	if s.rateLimiter != nil {
		handler = s.rateLimiter.Middleware(handler)
	}
	handler = s.requestIDMiddleware(handler)
	handler = s.recoveryMiddleware(handler)
	return handler
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}
	s.started = true

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.mu.Unlock()

	s.ready.Store(true)
	s.log.Info("Starting HTTP server", "addr", addr)
	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the server: readiness flips first so load
// balancers stop routing here, then the listener shuts down and
// in-flight requests drain.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.log.Info("Shutting down server")
	s.ready.Store(false)

	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Error("HTTP shutdown error", "error", err)
	}

	if s.drainInFlight(s.cfg.ShutdownTimeout) {
		s.log.Info("All in-flight requests completed")
	} else {
		s.log.Warn("Shutdown timeout reached with pending requests",
			"remaining", s.inFlight.Load())
	}

	s.started = false
	s.log.Info("Server stopped")
	return nil
}

// Ready reports whether the server accepts traffic.
func (s *Server) Ready() bool {
	return s.ready.Load()
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz fails while shutting down and, when the configured
// ranking engine needs the vector store, while qdrant is unreachable.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable,
			map[string]string{"status": "not_ready", "reason": "shutting_down"})
		return
	}

	if s.app.Ranking.Engine == "qdrant" && s.qdrant != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.qdrant.HealthCheck(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable,
				map[string]string{"status": "not_ready", "reason": "qdrant_unreachable"})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version":    s.cfg.Version,
		"git_commit": s.cfg.Commit,
		"build_time": s.cfg.BuildDate,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// drainInFlight waits for in-flight requests to finish or the timeout to
// pass. Returns true when the counter reached zero.
func (s *Server) drainInFlight(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if s.inFlight.Load() == 0 {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(50 * time.Millisecond)
	}
}
