package evaluation

import (
	"time"

	"github.com/irbench/ir-bench/internal/runstore"
)

// Request selects the benchmark and the knobs of one evaluation. Zero
// fields fall back to the server configuration.
type Request struct {
	// Dataset is the benchmark name, as listed by GET /v1/datasets.
	Dataset string `json:"dataset"`

	// Engine overrides the configured ranking engine.
	Engine string `json:"engine,omitempty"`

	// FeaturesDir overrides the directory read for merged feature files.
	FeaturesDir string `json:"features_dir,omitempty"`

	// Layer overrides the feature layer name.
	Layer string `json:"layer,omitempty"`

	// Ks overrides the precision cut-offs.
	Ks []int `json:"ks,omitempty"`

	// Async makes POST /v1/evaluate return a running record immediately
	// instead of waiting for the result. Poll GET /v1/runs/{id} for the
	// outcome.
	Async bool `json:"async,omitempty"`
}

// RunList is the GET /v1/runs response envelope.
type RunList struct {
	Runs  []*runstore.Run `json:"runs"`
	Total int             `json:"total"`
}

// DatasetInfo describes one benchmark in dataset listings.
type DatasetInfo struct {
	Name        string `json:"name"`
	NumDatabase int    `json:"num_database"`
	NumQueries  int    `json:"num_queries"`
	Tiered      bool   `json:"tiered"`
}

// DatasetList is the GET /v1/datasets response envelope.
type DatasetList struct {
	Datasets []DatasetInfo `json:"datasets"`
}

// StatsPoint is one bucket of an operational time series.
type StatsPoint struct {
	Timestamp time.Time `json:"ts"`
	Value     float64   `json:"value"`
}

// StatsResponse is the GET /v1/stats response.
type StatsResponse struct {
	EvaluationRate    []StatsPoint `json:"evaluation_rate"`
	EvaluationLatency []StatsPoint `json:"evaluation_latency"`
	ExtractRate       []StatsPoint `json:"extract_rate"`
}
