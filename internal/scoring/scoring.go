// Package scoring implements ranked-retrieval evaluation: per-query Average
// Precision with junk handling, mean Average Precision over a query set, and
// mean Precision-at-k for a list of cut-offs. The tiered protocol used by the
// revisited Oxford/Paris benchmarks recombines raw easy/hard/junk labels into
// Easy, Medium and Hard evaluation views and scores each view independently.
package scoring

import (
	"fmt"

	apperrors "github.com/irbench/ir-bench/internal/pkg/errors"
)

// SimilarityMatrix is a dense row-major matrix of similarity scores with one
// row per query and one column per database item. Entry (q, d) is the
// similarity of query q to database item d.
type SimilarityMatrix struct {
	Rows int
	Cols int
	Data []float32
}

// NewSimilarityMatrix validates the shape and wraps the raw score buffer.
func NewSimilarityMatrix(rows, cols int, data []float32) (SimilarityMatrix, error) {
	if rows < 0 || cols < 0 {
		return SimilarityMatrix{}, apperrors.ShapeMismatchError(
			fmt.Sprintf("negative dimensions %dx%d", rows, cols))
	}
	if len(data) != rows*cols {
		return SimilarityMatrix{}, apperrors.ShapeMismatchError(
			fmt.Sprintf("buffer has %d entries, want %d for %dx%d", len(data), rows*cols, rows, cols))
	}
	return SimilarityMatrix{Rows: rows, Cols: cols, Data: data}, nil
}

// At returns the similarity of query q to database item d.
func (m SimilarityMatrix) At(q, d int) float32 {
	return m.Data[q*m.Cols+d]
}

// Row returns the similarity scores of query q against the whole database.
// The returned slice aliases the matrix buffer.
func (m SimilarityMatrix) Row(q int) []float32 {
	return m.Data[q*m.Cols : (q+1)*m.Cols]
}

// QueryRelevance labels database indices for a single query. Positive indices
// count toward precision and recall; junk indices are excluded from scoring
// entirely; everything else is a negative. An index present in both sets is
// treated as junk.
type QueryRelevance struct {
	Name     string
	Positive []int
	Junk     []int
}

// TieredRelevance carries the raw easy/hard/junk labels of one query in a
// tiered benchmark, before recombination into evaluation views.
type TieredRelevance struct {
	Name string
	Easy []int
	Hard []int
	Junk []int
}

// APResult is the score of a single query.
type APResult struct {
	Name        string          `json:"name"`
	AP          float64         `json:"ap"`
	PrecisionAt map[int]float64 `json:"precision_at,omitempty"`
}

// AggregateResult is the mean score over a query set for one evaluation view.
type AggregateResult struct {
	MAP             float64         `json:"map"`
	MeanPrecisionAt map[int]float64 `json:"mean_precision_at,omitempty"`
	Queries         []APResult      `json:"queries,omitempty"`
	NumQueries      int             `json:"num_queries"`
}

// TieredResult holds one AggregateResult per evaluation view.
type TieredResult struct {
	Easy   AggregateResult `json:"easy"`
	Medium AggregateResult `json:"medium"`
	Hard   AggregateResult `json:"hard"`
}

// DefaultKs is the Precision-at-k cut-off list used when none is configured.
var DefaultKs = []int{1, 5, 10}
