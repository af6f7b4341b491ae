package metrics

import (
	"context"
	"sync"
	"time"
)

// DataPoint is a single time-series sample.
type DataPoint struct {
	Timestamp time.Time
	Value     float64
}

// MetricHistory stores time-series data with bucketing and retention.
// Values recorded inside one bucket window are averaged into one point.
type MetricHistory struct {
	mu          sync.Mutex
	buckets     []DataPoint
	bucketSize  time.Duration
	maxBuckets  int
	accumulator float64
	count       int64
	sumMode     bool
	lastBucket  time.Time
	storage     *RedisStorage
	metricName  string
}

// NewMetricHistory creates a history with the given bucket size and
// retention. With sumMode the bucket value is the sum of recordings
// instead of their average.
func NewMetricHistory(bucketSize time.Duration, maxBuckets int, sumMode bool) *MetricHistory {
	return &MetricHistory{
		buckets:    make([]DataPoint, 0, maxBuckets),
		bucketSize: bucketSize,
		maxBuckets: maxBuckets,
		sumMode:    sumMode,
		lastBucket: time.Now().Truncate(bucketSize),
	}
}

// NewMetricHistoryWithRedis creates a history persisted to Redis,
// preloading whatever the retention window still covers.
func NewMetricHistoryWithRedis(bucketSize time.Duration, maxBuckets int, sumMode bool, storage *RedisStorage, metricName string) *MetricHistory {
	h := NewMetricHistory(bucketSize, maxBuckets, sumMode)
	h.storage = storage
	h.metricName = metricName

	if storage != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		since := time.Now().Add(-time.Duration(maxBuckets) * bucketSize)
		if dataPoints, err := storage.LoadHistory(ctx, metricName, since); err == nil && len(dataPoints) > 0 {
			h.buckets = dataPoints
		}
	}

	return h
}

// Record adds a value to the current bucket.
func (h *MetricHistory) Record(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.rotate()
	h.accumulator += value
	h.count++
}

// RecordCount adds one occurrence to the current bucket.
func (h *MetricHistory) RecordCount() {
	h.Record(1)
}

// rotate finalizes the previous bucket when the window has moved on.
// Must be called with the lock held.
func (h *MetricHistory) rotate() {
	currentBucket := time.Now().Truncate(h.bucketSize)
	if !currentBucket.After(h.lastBucket) {
		return
	}

	h.finalizeBucket()
	h.lastBucket = currentBucket
}

// finalizeBucket appends the accumulated value as a data point.
// Must be called with the lock held.
func (h *MetricHistory) finalizeBucket() {
	if h.count == 0 {
		return
	}

	value := h.accumulator
	if !h.sumMode {
		value = h.accumulator / float64(h.count)
	}

	dp := DataPoint{Timestamp: h.lastBucket, Value: value}
	h.buckets = append(h.buckets, dp)

	// Persist asynchronously, history is best effort
	if h.storage != nil && h.metricName != "" {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = h.storage.SaveDataPoint(ctx, h.metricName, dp)
		}()
	}

	if len(h.buckets) > h.maxBuckets {
		h.buckets = h.buckets[len(h.buckets)-h.maxBuckets:]
	}

	h.accumulator = 0
	h.count = 0
}

// History returns the finished buckets plus the current one if it has data.
func (h *MetricHistory) History() []DataPoint {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.rotate()

	result := make([]DataPoint, len(h.buckets))
	copy(result, h.buckets)

	if h.count > 0 {
		value := h.accumulator
		if !h.sumMode {
			value = h.accumulator / float64(h.count)
		}
		result = append(result, DataPoint{Timestamp: h.lastBucket, Value: value})
	}

	return result
}

// HistorySince returns data points at or after the given time.
func (h *MetricHistory) HistorySince(since time.Time) []DataPoint {
	all := h.History()
	result := make([]DataPoint, 0, len(all))
	for _, dp := range all {
		if !dp.Timestamp.Before(since) {
			result = append(result, dp)
		}
	}
	return result
}

// TimeSeriesData holds the time-series exposed by the stats endpoint.
type TimeSeriesData struct {
	EvaluationRate    *MetricHistory // Evaluations per bucket
	EvaluationLatency *MetricHistory // Average evaluation duration per bucket
	ExtractRate       *MetricHistory // Images embedded per bucket
}

const (
	historyBucketSize = 5 * time.Minute
	historyMaxBuckets = 12 // 1 hour retention
)

// NewTimeSeriesData creates an in-memory time-series collection.
func NewTimeSeriesData() *TimeSeriesData {
	return &TimeSeriesData{
		EvaluationRate:    NewMetricHistory(historyBucketSize, historyMaxBuckets, true),
		EvaluationLatency: NewMetricHistory(historyBucketSize, historyMaxBuckets, false),
		ExtractRate:       NewMetricHistory(historyBucketSize, historyMaxBuckets, true),
	}
}

// NewTimeSeriesDataWithRedis creates a time-series collection persisted
// to Redis.
func NewTimeSeriesDataWithRedis(storage *RedisStorage) *TimeSeriesData {
	return &TimeSeriesData{
		EvaluationRate:    NewMetricHistoryWithRedis(historyBucketSize, historyMaxBuckets, true, storage, "evaluation_rate"),
		EvaluationLatency: NewMetricHistoryWithRedis(historyBucketSize, historyMaxBuckets, false, storage, "evaluation_latency"),
		ExtractRate:       NewMetricHistoryWithRedis(historyBucketSize, historyMaxBuckets, true, storage, "extract_rate"),
	}
}

// RecordEvaluation records one evaluation for time-series tracking.
func (t *TimeSeriesData) RecordEvaluation(durationMs float64) {
	t.EvaluationRate.RecordCount()
	t.EvaluationLatency.Record(durationMs)
}

// RecordExtract records embedded images for time-series tracking.
func (t *TimeSeriesData) RecordExtract(images int) {
	t.ExtractRate.Record(float64(images))
}
