// Package bus provides event bus implementations for pipeline coordination.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Bus defines the interface for event bus implementations.
type Bus interface {
	// Publish publishes an event to a topic.
	Publish(ctx context.Context, topic string, event Event) error

	// Subscribe subscribes to events on a topic.
	Subscribe(ctx context.Context, topic string, handler Handler) error

	// Request sends a request and waits for a response.
	Request(ctx context.Context, topic string, req Event) (Event, error)

	// Close closes the bus and releases resources.
	Close() error
}

// Event represents a bus event.
type Event struct {
	// ID is the unique event identifier.
	ID string `json:"id"`

	// Type is the event type (e.g., "evaluation.completed").
	Type string `json:"type"`

	// Source is the component that generated the event.
	Source string `json:"source"`

	// Timestamp is when the event was created.
	Timestamp int64 `json:"timestamp"`

	// CorrelationID links related events (e.g., request/response).
	CorrelationID string `json:"correlation_id,omitempty"`

	// Payload contains the event data.
	Payload any `json:"payload"`
}

// NewEvent builds an event with a fresh ID and the current timestamp.
func NewEvent(eventType, source string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	}
}

// Topics for different event types.
const (
	// Evaluation lifecycle topics.
	TopicEvaluationStarted   = "evaluation.started"
	TopicEvaluationCompleted = "evaluation.completed"
	TopicEvaluationFailed    = "evaluation.failed"

	// Extraction topics.
	TopicExtractStarted  = "extract.started"
	TopicExtractProgress = "extract.progress"
	TopicExtractDone     = "extract.done"

	// Feature shard topics.
	TopicFeaturesMerged = "features.merged"
	TopicShardDetected  = "watch.shard"
)
