// Package runstore persists evaluation run records.
// A run is one scoring of a benchmark with one ranking engine.
package runstore

import (
	"time"

	"github.com/google/uuid"

	"github.com/irbench/ir-bench/internal/scoring"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Run records one evaluation of a benchmark.
type Run struct {
	ID      string `json:"id"`
	Dataset string `json:"dataset"`
	Engine  string `json:"engine"`
	Status  Status `json:"status"`

	// Fingerprint identifies the feature sets the run scored, so two
	// runs over the same features can be told apart from a re-extraction.
	Fingerprint string `json:"fingerprint,omitempty"`

	// Ks are the precision cut-offs the run reported.
	Ks []int `json:"ks,omitempty"`

	Result *Result `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Result carries the scores of a finished run. Tiered is set for the
// revisited benchmarks, Global for the single-protocol ones.
type Result struct {
	Tiered *scoring.TieredResult    `json:"tiered,omitempty"`
	Global *scoring.AggregateResult `json:"global,omitempty"`

	// MAPVal is the mean AP over the INSTRE validation subset.
	MAPVal *float64 `json:"map_val,omitempty"`
}

// NewRun creates a running record with a fresh id.
func NewRun(dataset, engine string) *Run {
	return &Run{
		ID:        uuid.NewString(),
		Dataset:   dataset,
		Engine:    engine,
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}
}

// Complete marks the run finished with its result.
func (r *Run) Complete(result *Result) {
	r.Status = StatusCompleted
	r.Result = result
	r.FinishedAt = time.Now()
}

// Fail marks the run failed with the causing error.
func (r *Run) Fail(err error) {
	r.Status = StatusFailed
	if err != nil {
		r.Error = err.Error()
	}
	r.FinishedAt = time.Now()
}

// Finished reports whether the run reached a terminal status.
func (r *Run) Finished() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}

// Duration is the run's wall time. Unfinished runs measure up to now.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
