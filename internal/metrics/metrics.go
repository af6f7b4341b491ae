package metrics

import (
	"runtime"
	"time"
)

// Metrics holds all application metrics.
type Metrics struct {
	// Evaluation metrics
	Evaluations        *CounterVec   // labels: dataset, engine, status
	EvaluationDuration *HistogramVec // labels: dataset
	EvaluationMAP      *GaugeVec     // labels: dataset, view
	QueriesScored      *Counter
	ScoringErrors      *CounterVec // labels: code

	// Extraction metrics
	ExtractedImages      *Counter
	ExtractBatchDuration *Histogram
	ExtractErrors        *Counter

	// Feature metrics
	ShardsMerged *Counter
	FeatureRows  *GaugeVec // labels: split

	// Ranking metrics
	SimilarityDuration *HistogramVec // labels: engine
	QdrantSearches     *Counter
	QdrantErrors       *Counter

	// Bus metrics
	BusEventsPublished *CounterVec   // labels: topic
	BusEventLatency    *HistogramVec // labels: topic
	BusErrors          *CounterVec   // labels: topic

	// HTTP metrics
	HTTPRequests         *CounterVec   // labels: method, path, status
	HTTPDuration         *HistogramVec // labels: method, path
	HTTPRequestsInFlight *Gauge

	// System metrics
	GoroutineCount *Gauge
	MemoryUsage    *Gauge // in bytes
	Uptime         *Counter

	// Time-series data for the stats endpoint
	TimeSeries *TimeSeriesData

	// Redis storage (optional)
	redisStorage *RedisStorage

	startTime time.Time
	stop      chan struct{}
}

// New creates a metrics instance with in-memory storage only.
func New() *Metrics {
	return NewWithConfig("memory", "")
}

// NewWithRedis creates a metrics instance with Redis persistence for
// time-series data. Falls back to in-memory if the connection fails.
func NewWithRedis(redisURL string) *Metrics {
	return NewWithConfig("redis", redisURL)
}

// NewWithConfig creates a metrics instance with the given persistence,
// "memory" or "redis".
func NewWithConfig(persistence, redisURL string) *Metrics {
	var redisStorage *RedisStorage
	var timeSeries *TimeSeriesData

	if persistence == "redis" && redisURL != "" {
		storage, err := NewRedisStorage(redisURL)
		if err == nil {
			redisStorage = storage
			timeSeries = NewTimeSeriesDataWithRedis(redisStorage)
		}
	}
	if timeSeries == nil {
		timeSeries = NewTimeSeriesData()
	}

	m := &Metrics{
		Evaluations: NewCounterVec(
			"irbench_evaluations_total",
			"Total number of evaluations by outcome",
			[]string{"dataset", "engine", "status"},
		),
		EvaluationDuration: NewHistogramVec(
			"irbench_evaluation_duration_ms",
			"Evaluation duration in milliseconds",
			[]string{"dataset"},
			[]float64{10, 50, 100, 500, 1000, 5000, 10000, 30000, 60000, 300000},
		),
		EvaluationMAP: NewGaugeVec(
			"irbench_evaluation_map",
			"Mean average precision of the latest evaluation",
			[]string{"dataset", "view"},
		),
		QueriesScored: NewCounter(
			"irbench_queries_scored_total",
			"Total number of benchmark queries scored",
			nil,
		),
		ScoringErrors: NewCounterVec(
			"irbench_scoring_errors_total",
			"Total number of evaluation failures by error code",
			[]string{"code"},
		),

		ExtractedImages: NewCounter(
			"irbench_extracted_images_total",
			"Total number of images embedded",
			nil,
		),
		ExtractBatchDuration: NewHistogram(
			"irbench_extract_batch_duration_ms",
			"Extraction batch duration in milliseconds",
			[]float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		),
		ExtractErrors: NewCounter(
			"irbench_extract_errors_total",
			"Total number of extraction errors",
			nil,
		),

		ShardsMerged: NewCounter(
			"irbench_shards_merged_total",
			"Total number of feature shards merged",
			nil,
		),
		FeatureRows: NewGaugeVec(
			"irbench_feature_rows",
			"Rows in the most recently loaded feature set",
			[]string{"split"},
		),

		SimilarityDuration: NewHistogramVec(
			"irbench_similarity_duration_ms",
			"Similarity computation duration in milliseconds",
			[]string{"engine"},
			[]float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 30000},
		),
		QdrantSearches: NewCounter(
			"irbench_qdrant_searches_total",
			"Total number of Qdrant dense searches",
			nil,
		),
		QdrantErrors: NewCounter(
			"irbench_qdrant_errors_total",
			"Total number of Qdrant errors",
			nil,
		),

		BusEventsPublished: NewCounterVec(
			"irbench_bus_events_published_total",
			"Total number of events published to the bus",
			[]string{"topic"},
		),
		BusEventLatency: NewHistogramVec(
			"irbench_bus_event_latency_seconds",
			"Event bus publish latency in seconds",
			[]string{"topic"},
			[]float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		),
		BusErrors: NewCounterVec(
			"irbench_bus_errors_total",
			"Total number of event bus errors",
			[]string{"topic"},
		),

		HTTPRequests: NewCounterVec(
			"irbench_http_requests_total",
			"Total number of HTTP requests",
			[]string{"method", "path", "status"},
		),
		HTTPDuration: NewHistogramVec(
			"irbench_http_request_duration_seconds",
			"HTTP request duration in seconds",
			[]string{"method", "path"},
			[]float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		),
		HTTPRequestsInFlight: NewGauge(
			"irbench_http_requests_in_flight",
			"Number of HTTP requests currently being processed",
			nil,
		),

		GoroutineCount: NewGauge(
			"irbench_goroutines",
			"Number of goroutines",
			nil,
		),
		MemoryUsage: NewGauge(
			"irbench_memory_bytes",
			"Memory usage in bytes",
			nil,
		),
		Uptime: NewCounter(
			"irbench_uptime_seconds",
			"Application uptime in seconds",
			nil,
		),

		TimeSeries:   timeSeries,
		redisStorage: redisStorage,
		startTime:    time.Now(),
		stop:         make(chan struct{}),
	}

	go m.collectSystemMetrics()

	return m
}

// collectSystemMetrics periodically samples runtime statistics until Close.
func (m *Metrics) collectSystemMetrics() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.GoroutineCount.Set(float64(runtime.NumGoroutine()))

			var memStats runtime.MemStats
			runtime.ReadMemStats(&memStats)
			m.MemoryUsage.Set(float64(memStats.Alloc))

			m.Uptime.Add(15)
		}
	}
}

// RecordEvaluation records one finished evaluation.
func (m *Metrics) RecordEvaluation(dataset, engine string, durationMs int64, err error) {
	status := "completed"
	if err != nil {
		status = "failed"
	}
	m.Evaluations.WithLabels(dataset, engine, status).Inc()
	m.EvaluationDuration.WithLabels(dataset).Observe(float64(durationMs))

	if m.TimeSeries != nil {
		m.TimeSeries.RecordEvaluation(float64(durationMs))
	}
}

// SetMAP records the mAP of the latest evaluation for one view
// ("easy", "medium", "hard" or "global").
func (m *Metrics) SetMAP(dataset, view string, value float64) {
	m.EvaluationMAP.WithLabels(dataset, view).Set(value)
}

// RecordQueriesScored adds the query count of a finished evaluation.
func (m *Metrics) RecordQueriesScored(n int) {
	m.QueriesScored.Add(int64(n))
}

// RecordScoringError counts an evaluation failure by its error code.
func (m *Metrics) RecordScoringError(code string) {
	m.ScoringErrors.WithLabels(code).Inc()
}

// RecordExtractBatch records one embedded batch.
func (m *Metrics) RecordExtractBatch(images int, durationMs int64) {
	m.ExtractedImages.Add(int64(images))
	m.ExtractBatchDuration.Observe(float64(durationMs))

	if m.TimeSeries != nil {
		m.TimeSeries.RecordExtract(images)
	}
}

// RecordExtractError records a failed extraction.
func (m *Metrics) RecordExtractError() {
	m.ExtractErrors.Inc()
}

// RecordMerge records a completed shard merge.
func (m *Metrics) RecordMerge(shards int) {
	m.ShardsMerged.Add(int64(shards))
}

// SetFeatureRows records the size of a loaded feature set.
func (m *Metrics) SetFeatureRows(split string, rows int) {
	m.FeatureRows.WithLabels(split).Set(float64(rows))
}

// RecordSimilarity records one similarity matrix computation.
func (m *Metrics) RecordSimilarity(engine string, durationMs int64) {
	m.SimilarityDuration.WithLabels(engine).Observe(float64(durationMs))
}

// RecordQdrantSearch records a Qdrant search outcome.
func (m *Metrics) RecordQdrantSearch(err error) {
	m.QdrantSearches.Inc()
	if err != nil {
		m.QdrantErrors.Inc()
	}
}

// RecordBusPublish records event bus publish metrics. This satisfies
// the bus package's MetricsRecorder interface.
func (m *Metrics) RecordBusPublish(topic string, latencyMs int64, err error) {
	m.BusEventsPublished.WithLabels(topic).Inc()
	m.BusEventLatency.WithLabels(topic).Observe(float64(latencyMs) / 1000.0)

	if err != nil {
		m.BusErrors.WithLabels(topic).Inc()
	}
}

// RecordHTTP records HTTP request metrics. Called by the middleware.
func (m *Metrics) RecordHTTP(method, path string, status int, durationSeconds float64) {
	normalizedPath := normalizePath(path)
	m.HTTPRequests.WithLabels(method, normalizedPath, statusCode(status)).Inc()
	m.HTTPDuration.WithLabels(method, normalizedPath).Observe(durationSeconds)
}

// Close stops background collection and releases resources.
func (m *Metrics) Close() error {
	close(m.stop)
	if m.redisStorage != nil {
		return m.redisStorage.Close()
	}
	return nil
}

// IsRedisPersisted reports whether time-series data is persisted to Redis.
func (m *Metrics) IsRedisPersisted() bool {
	return m.redisStorage != nil
}
