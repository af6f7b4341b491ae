package metrics

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// PrometheusFormat exports all metrics in Prometheus text exposition format.
// See: https://prometheus.io/docs/instrumenting/exposition_formats/
func (m *Metrics) PrometheusFormat() string {
	var sb strings.Builder

	// Evaluation metrics
	writeCounterVec(&sb, m.Evaluations)
	writeHistogramVec(&sb, m.EvaluationDuration)
	writeGaugeVec(&sb, m.EvaluationMAP)

	// Extraction metrics
	writeCounter(&sb, m.ExtractedImages)
	writeHistogram(&sb, m.ExtractBatchDuration)
	writeCounter(&sb, m.ExtractErrors)

	// Feature metrics
	writeCounter(&sb, m.ShardsMerged)
	writeGaugeVec(&sb, m.FeatureRows)

	// Ranking metrics
	writeHistogramVec(&sb, m.SimilarityDuration)
	writeCounter(&sb, m.QdrantSearches)
	writeCounter(&sb, m.QdrantErrors)

	// Bus metrics
	writeCounterVec(&sb, m.BusEventsPublished)
	writeHistogramVec(&sb, m.BusEventLatency)
	writeCounterVec(&sb, m.BusErrors)

	// HTTP metrics
	writeCounterVec(&sb, m.HTTPRequests)
	writeHistogramVec(&sb, m.HTTPDuration)
	writeGauge(&sb, m.HTTPRequestsInFlight)

	// System metrics
	writeGauge(&sb, m.GoroutineCount)
	writeGauge(&sb, m.MemoryUsage)
	writeCounter(&sb, m.Uptime)

	return sb.String()
}

func writeHeader(sb *strings.Builder, name, help, metricType string) {
	sb.WriteString("# HELP ")
	sb.WriteString(name)
	sb.WriteString(" ")
	sb.WriteString(help)
	sb.WriteString("\n# TYPE ")
	sb.WriteString(name)
	sb.WriteString(" ")
	sb.WriteString(metricType)
	sb.WriteString("\n")
}

func writeCounter(sb *strings.Builder, c *Counter) {
	writeHeader(sb, c.Name(), c.Help(), "counter")
	writeCounterSample(sb, c)
}

func writeCounterSample(sb *strings.Builder, c *Counter) {
	sb.WriteString(c.Name())
	writeLabels(sb, c.Labels())
	sb.WriteString(" ")
	sb.WriteString(strconv.FormatInt(c.Value(), 10))
	sb.WriteString("\n")
}

func writeGauge(sb *strings.Builder, g *Gauge) {
	writeHeader(sb, g.Name(), g.Help(), "gauge")
	writeGaugeSample(sb, g)
}

func writeGaugeSample(sb *strings.Builder, g *Gauge) {
	sb.WriteString(g.Name())
	writeLabels(sb, g.Labels())
	sb.WriteString(" ")
	sb.WriteString(strconv.FormatFloat(g.Value(), 'g', -1, 64))
	sb.WriteString("\n")
}

func writeHistogram(sb *strings.Builder, h *Histogram) {
	writeHeader(sb, h.Name(), h.Help(), "histogram")
	writeHistogramSamples(sb, h)
}

func writeHistogramSamples(sb *strings.Builder, h *Histogram) {
	labels := h.Labels()
	buckets := h.Buckets()
	counts := h.BucketCounts()

	for i, bucket := range buckets {
		writeBucketSample(sb, h.Name(), labels, strconv.FormatFloat(bucket, 'g', -1, 64), counts[i])
	}
	writeBucketSample(sb, h.Name(), labels, "+Inf", counts[len(counts)-1])

	sb.WriteString(h.Name())
	sb.WriteString("_sum")
	writeLabels(sb, labels)
	sb.WriteString(" ")
	sb.WriteString(fmt.Sprintf("%.6g", h.Sum()))
	sb.WriteString("\n")

	sb.WriteString(h.Name())
	sb.WriteString("_count")
	writeLabels(sb, labels)
	sb.WriteString(" ")
	sb.WriteString(strconv.FormatInt(h.Count(), 10))
	sb.WriteString("\n")
}

func writeBucketSample(sb *strings.Builder, name string, labels map[string]string, le string, count int64) {
	withLe := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		withLe[k] = v
	}
	withLe["le"] = le

	sb.WriteString(name)
	sb.WriteString("_bucket")
	writeLabels(sb, withLe)
	sb.WriteString(" ")
	sb.WriteString(strconv.FormatInt(count, 10))
	sb.WriteString("\n")
}

func writeCounterVec(sb *strings.Builder, cv *CounterVec) {
	counters := cv.GetAll()
	if len(counters) == 0 {
		return
	}
	sortByLabelKey(counters, func(c *Counter) map[string]string { return c.Labels() })

	writeHeader(sb, cv.Name(), cv.Help(), "counter")
	for _, c := range counters {
		writeCounterSample(sb, c)
	}
}

func writeGaugeVec(sb *strings.Builder, gv *GaugeVec) {
	gauges := gv.GetAll()
	if len(gauges) == 0 {
		return
	}
	sortByLabelKey(gauges, func(g *Gauge) map[string]string { return g.Labels() })

	writeHeader(sb, gv.Name(), gv.Help(), "gauge")
	for _, g := range gauges {
		writeGaugeSample(sb, g)
	}
}

func writeHistogramVec(sb *strings.Builder, hv *HistogramVec) {
	histograms := hv.GetAll()
	if len(histograms) == 0 {
		return
	}
	sortByLabelKey(histograms, func(h *Histogram) map[string]string { return h.Labels() })

	writeHeader(sb, hv.Name(), hv.Help(), "histogram")
	for _, h := range histograms {
		writeHistogramSamples(sb, h)
	}
}

// sortByLabelKey gives vectors a stable exposition order.
func sortByLabelKey[T any](items []T, labels func(T) map[string]string) {
	sort.Slice(items, func(i, j int) bool {
		return labelsToKey(labels(items[i])) < labelsToKey(labels(items[j]))
	})
}

// writeLabels writes labels as {key="value",key2="value2"}.
func writeLabels(sb *strings.Builder, labels map[string]string) {
	if len(labels) == 0 {
		return
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sb.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(k)
		sb.WriteString("=\"")
		sb.WriteString(escapeString(labels[k]))
		sb.WriteString("\"")
	}
	sb.WriteString("}")
}

// escapeString escapes special characters in label values.
func escapeString(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
