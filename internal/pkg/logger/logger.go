// Package logger provides structured logging utilities.
package logger

import (
	"context"
	"log/slog"
	"os"

	"github.com/irbench/ir-bench/internal/pkg/reqctx"
)

// Logger wraps slog.Logger with additional context.
type Logger struct {
	*slog.Logger
}

// New creates a new logger with the specified level and format.
func New(level, format string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithContext returns a logger carrying the request-scoped identifiers
// found in ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	out := l.Logger
	if id := reqctx.RequestID(ctx); id != "" {
		out = out.With("request_id", id)
	}
	if id := reqctx.RunID(ctx); id != "" {
		out = out.With("run_id", id)
	}
	if out == l.Logger {
		return l
	}
	return &Logger{Logger: out}
}

// WithDataset returns a logger with dataset context.
func (l *Logger) WithDataset(dataset string) *Logger {
	return &Logger{
		Logger: l.With("dataset", dataset),
	}
}

// WithRun returns a logger with evaluation run context.
func (l *Logger) WithRun(runID string) *Logger {
	return &Logger{
		Logger: l.With("run_id", runID),
	}
}

// WithComponent returns a logger with component context.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.With("component", component),
	}
}

// WithError returns a logger with error context.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{
		Logger: l.With("error", err.Error()),
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Default returns the default logger.
func Default() *Logger {
	return New("info", "text")
}
