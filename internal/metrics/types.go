// Package metrics provides Prometheus-compatible metrics for the
// evaluation service.
package metrics

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Counter is a monotonically increasing counter.
type Counter struct {
	name   string
	help   string
	value  atomic.Int64
	labels map[string]string
}

// NewCounter creates a new counter.
func NewCounter(name, help string, labels map[string]string) *Counter {
	if labels == nil {
		labels = make(map[string]string)
	}
	return &Counter{
		name:   name,
		help:   help,
		labels: labels,
	}
}

// Inc increments the counter by 1.
func (c *Counter) Inc() {
	c.value.Add(1)
}

// Add adds the given value to the counter. Negative deltas are ignored.
func (c *Counter) Add(delta int64) {
	if delta < 0 {
		return
	}
	c.value.Add(delta)
}

// Value returns the current counter value.
func (c *Counter) Value() int64 {
	return c.value.Load()
}

// Reset resets the counter to 0.
func (c *Counter) Reset() {
	c.value.Store(0)
}

// Name returns the metric name.
func (c *Counter) Name() string { return c.name }

// Help returns the metric help text.
func (c *Counter) Help() string { return c.help }

// Labels returns a copy of the metric labels.
func (c *Counter) Labels() map[string]string {
	return copyLabels(c.labels)
}

// Gauge is a metric that can go up and down. The value is a float64
// stored as its bit pattern so fractional values survive.
type Gauge struct {
	name   string
	help   string
	bits   atomic.Uint64
	labels map[string]string
}

// NewGauge creates a new gauge.
func NewGauge(name, help string, labels map[string]string) *Gauge {
	if labels == nil {
		labels = make(map[string]string)
	}
	return &Gauge{
		name:   name,
		help:   help,
		labels: labels,
	}
}

// Set sets the gauge to the given value.
func (g *Gauge) Set(value float64) {
	g.bits.Store(math.Float64bits(value))
}

// Inc increments the gauge by 1.
func (g *Gauge) Inc() {
	g.Add(1)
}

// Add adds the given value to the gauge.
func (g *Gauge) Add(delta float64) {
	for {
		old := g.bits.Load()
		updated := math.Float64bits(math.Float64frombits(old) + delta)
		if g.bits.CompareAndSwap(old, updated) {
			return
		}
	}
}

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() {
	g.Add(-1)
}

// Value returns the current gauge value.
func (g *Gauge) Value() float64 {
	return math.Float64frombits(g.bits.Load())
}

// Name returns the metric name.
func (g *Gauge) Name() string { return g.name }

// Help returns the metric help text.
func (g *Gauge) Help() string { return g.help }

// Labels returns a copy of the metric labels.
func (g *Gauge) Labels() map[string]string {
	return copyLabels(g.labels)
}

// Histogram counts observations into cumulative buckets.
type Histogram struct {
	name    string
	help    string
	buckets []float64
	counts  []int64
	sum     float64
	count   int64
	labels  map[string]string
	mu      sync.RWMutex
}

// DefaultBuckets are millisecond latency buckets.
var DefaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// NewHistogram creates a new histogram with the given bucket upper bounds.
func NewHistogram(name, help string, buckets []float64) *Histogram {
	return newHistogram(name, help, buckets, nil)
}

func newHistogram(name, help string, buckets []float64, labels map[string]string) *Histogram {
	if len(buckets) == 0 {
		buckets = DefaultBuckets
	}
	sorted := make([]float64, len(buckets))
	copy(sorted, buckets)
	sort.Float64s(sorted)

	if labels == nil {
		labels = make(map[string]string)
	}

	return &Histogram{
		name:    name,
		help:    help,
		buckets: sorted,
		counts:  make([]int64, len(sorted)+1), // +1 for +Inf
		labels:  labels,
	}
}

// Observe adds a single observation.
func (h *Histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sum += value
	h.count++

	bucketIdx := len(h.buckets) // +Inf bucket
	for i, bucket := range h.buckets {
		if value <= bucket {
			bucketIdx = i
			break
		}
	}

	// Buckets are cumulative
	for i := bucketIdx; i < len(h.counts); i++ {
		h.counts[i]++
	}
}

// Count returns the total number of observations.
func (h *Histogram) Count() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Sum returns the sum of all observed values.
func (h *Histogram) Sum() float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sum
}

// Buckets returns the bucket upper bounds.
func (h *Histogram) Buckets() []float64 {
	result := make([]float64, len(h.buckets))
	copy(result, h.buckets)
	return result
}

// BucketCounts returns the cumulative count for each bucket, +Inf last.
func (h *Histogram) BucketCounts() []int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	result := make([]int64, len(h.counts))
	copy(result, h.counts)
	return result
}

// Name returns the metric name.
func (h *Histogram) Name() string { return h.name }

// Help returns the metric help text.
func (h *Histogram) Help() string { return h.help }

// Labels returns a copy of the metric labels.
func (h *Histogram) Labels() map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return copyLabels(h.labels)
}

// CounterVec is a counter partitioned by label values.
type CounterVec struct {
	name       string
	help       string
	labelNames []string
	counters   map[string]*Counter
	mu         sync.RWMutex
}

// NewCounterVec creates a new counter vector.
func NewCounterVec(name, help string, labelNames []string) *CounterVec {
	return &CounterVec{
		name:       name,
		help:       help,
		labelNames: labelNames,
		counters:   make(map[string]*Counter),
	}
}

// WithLabels returns the counter for the given label values.
func (cv *CounterVec) WithLabels(labelValues ...string) *Counter {
	labels := labelMap(cv.name, cv.labelNames, labelValues)
	key := labelsToKey(labels)

	cv.mu.RLock()
	counter, exists := cv.counters[key]
	cv.mu.RUnlock()
	if exists {
		return counter
	}

	cv.mu.Lock()
	defer cv.mu.Unlock()
	if counter, exists := cv.counters[key]; exists {
		return counter
	}

	counter = NewCounter(cv.name, cv.help, labels)
	cv.counters[key] = counter
	return counter
}

// GetAll returns all counters in the vector.
func (cv *CounterVec) GetAll() []*Counter {
	cv.mu.RLock()
	defer cv.mu.RUnlock()

	result := make([]*Counter, 0, len(cv.counters))
	for _, c := range cv.counters {
		result = append(result, c)
	}
	return result
}

// Name returns the metric name.
func (cv *CounterVec) Name() string { return cv.name }

// Help returns the metric help text.
func (cv *CounterVec) Help() string { return cv.help }

// GaugeVec is a gauge partitioned by label values.
type GaugeVec struct {
	name       string
	help       string
	labelNames []string
	gauges     map[string]*Gauge
	mu         sync.RWMutex
}

// NewGaugeVec creates a new gauge vector.
func NewGaugeVec(name, help string, labelNames []string) *GaugeVec {
	return &GaugeVec{
		name:       name,
		help:       help,
		labelNames: labelNames,
		gauges:     make(map[string]*Gauge),
	}
}

// WithLabels returns the gauge for the given label values.
func (gv *GaugeVec) WithLabels(labelValues ...string) *Gauge {
	labels := labelMap(gv.name, gv.labelNames, labelValues)
	key := labelsToKey(labels)

	gv.mu.RLock()
	gauge, exists := gv.gauges[key]
	gv.mu.RUnlock()
	if exists {
		return gauge
	}

	gv.mu.Lock()
	defer gv.mu.Unlock()
	if gauge, exists := gv.gauges[key]; exists {
		return gauge
	}

	gauge = NewGauge(gv.name, gv.help, labels)
	gv.gauges[key] = gauge
	return gauge
}

// GetAll returns all gauges in the vector.
func (gv *GaugeVec) GetAll() []*Gauge {
	gv.mu.RLock()
	defer gv.mu.RUnlock()

	result := make([]*Gauge, 0, len(gv.gauges))
	for _, g := range gv.gauges {
		result = append(result, g)
	}
	return result
}

// Name returns the metric name.
func (gv *GaugeVec) Name() string { return gv.name }

// Help returns the metric help text.
func (gv *GaugeVec) Help() string { return gv.help }

// HistogramVec is a histogram partitioned by label values.
type HistogramVec struct {
	name       string
	help       string
	labelNames []string
	buckets    []float64
	histograms map[string]*Histogram
	mu         sync.RWMutex
}

// NewHistogramVec creates a new histogram vector.
func NewHistogramVec(name, help string, labelNames []string, buckets []float64) *HistogramVec {
	return &HistogramVec{
		name:       name,
		help:       help,
		labelNames: labelNames,
		buckets:    buckets,
		histograms: make(map[string]*Histogram),
	}
}

// WithLabels returns the histogram for the given label values.
func (hv *HistogramVec) WithLabels(labelValues ...string) *Histogram {
	labels := labelMap(hv.name, hv.labelNames, labelValues)
	key := labelsToKey(labels)

	hv.mu.RLock()
	histogram, exists := hv.histograms[key]
	hv.mu.RUnlock()
	if exists {
		return histogram
	}

	hv.mu.Lock()
	defer hv.mu.Unlock()
	if histogram, exists := hv.histograms[key]; exists {
		return histogram
	}

	histogram = newHistogram(hv.name, hv.help, hv.buckets, labels)
	hv.histograms[key] = histogram
	return histogram
}

// GetAll returns all histograms in the vector.
func (hv *HistogramVec) GetAll() []*Histogram {
	hv.mu.RLock()
	defer hv.mu.RUnlock()

	result := make([]*Histogram, 0, len(hv.histograms))
	for _, h := range hv.histograms {
		result = append(result, h)
	}
	return result
}

// Name returns the metric name.
func (hv *HistogramVec) Name() string { return hv.name }

// Help returns the metric help text.
func (hv *HistogramVec) Help() string { return hv.help }

func labelMap(metric string, names, values []string) map[string]string {
	if len(values) != len(names) {
		panic(fmt.Sprintf("%s: expected %d label values, got %d", metric, len(names), len(values)))
	}
	labels := make(map[string]string, len(names))
	for i, name := range names {
		labels[name] = values[i]
	}
	return labels
}

func copyLabels(labels map[string]string) map[string]string {
	result := make(map[string]string, len(labels))
	for k, v := range labels {
		result[k] = v
	}
	return result
}

// labelsToKey creates a stable key from a label map.
func labelsToKey(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(labels[k])
	}
	return sb.String()
}
