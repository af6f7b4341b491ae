// Package reqctx carries request-scoped identifiers through contexts.
package reqctx

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

type contextKey string

const (
	// RequestIDKey is the context key for the per-request ID.
	RequestIDKey contextKey = "request_id"

	// ConnectionIDKey is the context key for the caller's connection ID.
	ConnectionIDKey contextKey = "connection_id"

	// RunIDKey is the context key for the evaluation run ID.
	RunIDKey contextKey = "run_id"
)

// NewRequestID generates a short unique request ID.
func NewRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// RequestID retrieves the request ID from context.
// Returns empty string if not found.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithConnectionID adds a connection ID to the context.
func WithConnectionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ConnectionIDKey, id)
}

// ConnectionID retrieves the connection ID from context.
// Returns empty string if not found.
func ConnectionID(ctx context.Context) string {
	if id, ok := ctx.Value(ConnectionIDKey).(string); ok {
		return id
	}
	return ""
}

// WithRunID adds an evaluation run ID to the context.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RunIDKey, id)
}

// RunID retrieves the evaluation run ID from context.
// Returns empty string if not found.
func RunID(ctx context.Context) string {
	if id, ok := ctx.Value(RunIDKey).(string); ok {
		return id
	}
	return ""
}
