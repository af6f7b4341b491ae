package metrics

import (
	"context"
	"time"

	"github.com/irbench/ir-bench/internal/bus"
)

// EventSubscriber feeds metrics from bus events, so extraction and
// evaluation progress published by other processes still shows up in
// this one's exposition.
type EventSubscriber struct {
	metrics *Metrics
	bus     bus.Bus
}

// NewEventSubscriber creates a new event subscriber.
func NewEventSubscriber(metrics *Metrics, eventBus bus.Bus) *EventSubscriber {
	return &EventSubscriber{
		metrics: metrics,
		bus:     eventBus,
	}
}

// SubscribeToEvents subscribes to all metric-relevant topics.
func (es *EventSubscriber) SubscribeToEvents(ctx context.Context) error {
	if err := es.bus.Subscribe(ctx, bus.TopicEvaluationCompleted, es.handleEvaluationCompleted); err != nil {
		return err
	}
	if err := es.bus.Subscribe(ctx, bus.TopicEvaluationFailed, es.handleEvaluationFailed); err != nil {
		return err
	}
	if err := es.bus.Subscribe(ctx, bus.TopicExtractDone, es.handleExtractDone); err != nil {
		return err
	}
	if err := es.bus.Subscribe(ctx, bus.TopicFeaturesMerged, es.handleFeaturesMerged); err != nil {
		return err
	}
	return nil
}

func (es *EventSubscriber) handleEvaluationCompleted(ctx context.Context, event bus.Event) error {
	m := payloadMap(event)
	dataset := stringField(m, "dataset")
	engine := stringField(m, "engine")

	es.metrics.Evaluations.WithLabels(dataset, engine, "completed").Inc()

	if duration, ok := numberField(m, "duration_ms"); ok {
		es.metrics.EvaluationDuration.WithLabels(dataset).Observe(duration)
		if es.metrics.TimeSeries != nil {
			es.metrics.TimeSeries.RecordEvaluation(duration)
		}
	}
	return nil
}

func (es *EventSubscriber) handleEvaluationFailed(ctx context.Context, event bus.Event) error {
	m := payloadMap(event)
	es.metrics.Evaluations.WithLabels(stringField(m, "dataset"), stringField(m, "engine"), "failed").Inc()
	return nil
}

func (es *EventSubscriber) handleExtractDone(ctx context.Context, event bus.Event) error {
	m := payloadMap(event)
	if processed, ok := numberField(m, "processed"); ok {
		es.metrics.ExtractedImages.Add(int64(processed))
		if es.metrics.TimeSeries != nil {
			es.metrics.TimeSeries.RecordExtract(int(processed))
		}
	}
	return nil
}

func (es *EventSubscriber) handleFeaturesMerged(ctx context.Context, event bus.Event) error {
	m := payloadMap(event)
	if shards, ok := numberField(m, "shards"); ok {
		es.metrics.RecordMerge(int(shards))
	} else {
		es.metrics.ShardsMerged.Inc()
	}
	return nil
}

// TimedEvaluation wraps an evaluation and records its outcome.
func (es *EventSubscriber) TimedEvaluation(dataset, engine string, fn func() error) error {
	start := time.Now()
	err := fn()
	es.metrics.RecordEvaluation(dataset, engine, time.Since(start).Milliseconds(), err)
	return err
}

// payloadMap extracts the generic map form of an event payload. Events
// arriving over Kafka decode to map[string]interface{}; in-process
// events may carry typed payloads and return nil here.
func payloadMap(event bus.Event) map[string]interface{} {
	if m, ok := event.Payload.(map[string]interface{}); ok {
		return m
	}
	return nil
}

func stringField(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// numberField reads a numeric payload field. JSON decoding produces
// float64; in-process payloads may carry int or int64.
func numberField(m map[string]interface{}, key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}
