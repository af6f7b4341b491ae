// Package main provides the ir-bench server binary.
// The server exposes the HTTP evaluation API: submit runs, read results,
// browse benchmarks, and scrape metrics.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/irbench/ir-bench/internal/bus"
	"github.com/irbench/ir-bench/internal/config"
	"github.com/irbench/ir-bench/internal/evaluation"
	"github.com/irbench/ir-bench/internal/metrics"
	"github.com/irbench/ir-bench/internal/pkg/logger"
	"github.com/irbench/ir-bench/internal/qdrant"
	"github.com/irbench/ir-bench/internal/runstore"
	"github.com/irbench/ir-bench/internal/server"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ir-bench-server",
		Short: "ir-bench server - HTTP instance retrieval evaluation service",
		Long: `ir-bench server runs retrieval evaluations over HTTP.

The server exposes:
  - POST /v1/evaluate to score a feature set against a benchmark
  - GET  /v1/runs and /v1/datasets to browse results and benchmarks
  - GET  /healthz, /readyz, /metrics and /v1/stats for operations

Examples:
  ir-bench-server                              # Start with defaults
  ir-bench-server --port 9090                  # Custom HTTP port
  ir-bench-server --qdrant http://qdrant:6333  # Custom vector store`,
		RunE:         runServer,
		SilenceUsage: true,
	}

	// Server flags
	rootCmd.Flags().StringP("config", "c", "", "config file path")
	rootCmd.Flags().BoolP("verbose", "v", false, "verbose logging")
	rootCmd.Flags().IntP("port", "p", 8080, "HTTP server port")
	rootCmd.Flags().String("host", "0.0.0.0", "server host")
	rootCmd.Flags().String("qdrant", "", "Qdrant URL (overrides config)")

	// Version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ir-bench-server %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	// A .env file feeds the IRB_* variables in dev setups; missing is fine.
	_ = godotenv.Load()

	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")
	port, _ := cmd.Flags().GetInt("port")
	host, _ := cmd.Flags().GetString("host")
	qdrantURL, _ := cmd.Flags().GetString("qdrant")

	// Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Override from flags
	if cmd.Flags().Changed("port") {
		cfg.Port = port
	}
	if cmd.Flags().Changed("host") {
		cfg.Host = host
	}
	if qdrantURL != "" {
		cfg.Qdrant.URL = qdrantURL
	}

	// Setup logger
	logLevel := cfg.Log.Level
	if verbose {
		logLevel = "debug"
	}
	log := logger.New(logLevel, cfg.Log.Format)

	log.Info("Starting ir-bench server",
		"version", version,
		"addr", cfg.Address(),
		"engine", cfg.Ranking.Engine,
	)

	// Initialize metrics early so the bus and evaluator can record into it.
	// Uses Redis persistence if configured, otherwise in-memory history.
	var metricsSvc *metrics.Metrics
	if cfg.Metrics.Enabled {
		metricsSvc = metrics.NewWithConfig(cfg.Metrics.Persistence, cfg.Redis.URL)
		log.Info("Initialized metrics", "persistence", cfg.Metrics.Persistence)
	}

	// Initialize event bus, instrumented so publish rates and latencies
	// land in the metrics exposition
	eventBus, err := bus.NewBus(cfg.Bus, log)
	if err != nil {
		return fmt.Errorf("failed to create event bus: %w", err)
	}
	if metricsSvc != nil {
		eventBus = bus.NewInstrumentedBus(eventBus, metricsSvc)
	}
	defer func() { _ = eventBus.Close() }()
	log.Info("Initialized event bus", "type", cfg.Bus.Type)

	// Initialize Qdrant client when the ranking engine needs it. A failed
	// health check is not fatal: the store may still be coming up, and
	// readiness keeps probing it.
	var qc *qdrant.Client
	if cfg.Ranking.Engine == "qdrant" {
		qcfg, err := qdrant.ClientConfigFromURL(cfg.Qdrant.URL, cfg.Qdrant.APIKey)
		if err != nil {
			return fmt.Errorf("invalid Qdrant URL: %w", err)
		}
		qc, err = qdrant.NewClient(qcfg)
		if err != nil {
			return fmt.Errorf("failed to connect to Qdrant: %w", err)
		}
		defer func() { _ = qc.Close() }()

		if err := qc.HealthCheck(cmd.Context()); err != nil {
			log.Warn("Qdrant not reachable yet", "error", err)
		} else {
			log.Info("Connected to Qdrant", "host", qcfg.Host, "port", qcfg.Port)
		}
	}

	// Initialize run store
	runs, err := runstore.NewService(runstore.ServiceConfig{
		Backend: cfg.Runs.Backend,
		Dir:     cfg.Runs.Dir,
	})
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}
	log.Info("Initialized run store", "backend", cfg.Runs.Backend)

	// Initialize evaluator and its HTTP handler
	evaluator := evaluation.NewEvaluator(*cfg, runs, qc, eventBus, metricsSvc, log)
	evalHandler := evaluation.NewHandler(evaluator)

	// Feed bus events into the metrics history so extraction and watch
	// processes publishing to the same bus show up in /v1/stats
	if metricsSvc != nil {
		subscriber := metrics.NewEventSubscriber(metricsSvc, eventBus)
		if err := subscriber.SubscribeToEvents(context.Background()); err != nil {
			log.Warn("Failed to subscribe metrics to events", "error", err)
		} else {
			log.Info("Registered metrics event subscriber")
		}
	}

	// Assemble the HTTP server
	srvCfg := server.DefaultConfig()
	srvCfg.Host = cfg.Host
	srvCfg.Port = cfg.Port
	srvCfg.Version = version
	srvCfg.Commit = commit
	srvCfg.BuildDate = date

	srv := server.New(srvCfg, *cfg, evalHandler, metricsSvc, qc, log)

	// Start HTTP server in background
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", "error", err)
		}
	}()

	// Wait for shutdown signal (platform-specific: Unix includes SIGQUIT,
	// Windows does not)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, shutdownSignals...)

	<-sigCh
	log.Info("Shutdown signal received")

	// Graceful shutdown: readiness flips first, then the listener drains
	ctx, cancel := context.WithTimeout(context.Background(), srvCfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Stop(ctx); err != nil {
		log.Error("Server shutdown error", "error", err)
	}

	if metricsSvc != nil {
		if err := metricsSvc.Close(); err != nil {
			log.Warn("Error closing metrics service", "error", err)
		} else {
			log.Info("Closed metrics service")
		}
	}

	log.Info("Server stopped")
	return nil
}
