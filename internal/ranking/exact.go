package ranking

import (
	"context"

	"gonum.org/v1/gonum/mat"

	"github.com/irbench/ir-bench/internal/features"
	"github.com/irbench/ir-bench/internal/scoring"
)

// ExactEngine computes the full similarity matrix as Q * D^T. Features
// are expected to be L2-normalized, which makes the dot product the
// cosine similarity.
type ExactEngine struct{}

// NewExactEngine creates an exhaustive similarity engine.
func NewExactEngine() *ExactEngine {
	return &ExactEngine{}
}

// Name identifies the engine in run records and logs.
func (e *ExactEngine) Name() string { return "exact" }

// Similarity multiplies the query matrix with the transposed database
// matrix and returns the dense result.
func (e *ExactEngine) Similarity(ctx context.Context, queries, database *features.FeatureSet) (scoring.SimilarityMatrix, error) {
	if err := checkShapes(queries, database); err != nil {
		return scoring.SimilarityMatrix{}, err
	}
	if err := ctx.Err(); err != nil {
		return scoring.SimilarityMatrix{}, err
	}

	nq := queries.Len()
	nd := database.Len()

	q := mat.NewDense(nq, queries.Dim, toFloat64(queries.Features))
	d := mat.NewDense(nd, database.Dim, toFloat64(database.Features))

	var product mat.Dense
	product.Mul(q, d.T())

	data := make([]float32, nq*nd)
	for i := 0; i < nq; i++ {
		row := product.RawRowView(i)
		for j, v := range row {
			data[i*nd+j] = float32(v)
		}
	}

	return scoring.NewSimilarityMatrix(nq, nd, data)
}

func toFloat64(src []float32) []float64 {
	dst := make([]float64, len(src))
	for i, v := range src {
		dst[i] = float64(v)
	}
	return dst
}
