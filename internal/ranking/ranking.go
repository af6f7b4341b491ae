// Package ranking computes query-to-database similarity matrices for
// retrieval evaluation. The exact engine multiplies feature matrices
// directly; the qdrant engine delegates to an ANN index and is only an
// approximation of the exhaustive ranking.
package ranking

import (
	"context"
	"fmt"

	"github.com/irbench/ir-bench/internal/config"
	"github.com/irbench/ir-bench/internal/features"
	"github.com/irbench/ir-bench/internal/pkg/errors"
	"github.com/irbench/ir-bench/internal/qdrant"
	"github.com/irbench/ir-bench/internal/scoring"
)

// Engine computes the similarity of every query feature against every
// database feature.
type Engine interface {
	// Name identifies the engine in run records and logs.
	Name() string

	// Similarity returns a queries-by-database similarity matrix.
	Similarity(ctx context.Context, queries, database *features.FeatureSet) (scoring.SimilarityMatrix, error)
}

// NewFromConfig builds the engine selected by the ranking configuration.
// The qdrant client may be nil for the exact engine.
func NewFromConfig(cfg config.RankingConfig, client *qdrant.Client, dataset string) (Engine, error) {
	switch cfg.Engine {
	case "exact", "":
		return NewExactEngine(), nil

	case "qdrant":
		if client == nil {
			return nil, errors.New(errors.CodeValidation, "qdrant engine requires a qdrant client")
		}
		return NewAnnEngine(client, AnnOptions{
			Collection: dataset,
			Dataset:    dataset,
			Limit:      uint64(cfg.AnnLimit),
		}), nil

	default:
		return nil, errors.New(errors.CodeValidation, fmt.Sprintf("unknown ranking engine: %s", cfg.Engine))
	}
}

// checkShapes validates that the two feature sets can be compared.
func checkShapes(queries, database *features.FeatureSet) error {
	if queries == nil || queries.Len() == 0 {
		return errors.EmptyQuerySetError()
	}
	if database == nil || database.Len() == 0 {
		return errors.FeatureError("database feature set is empty", nil)
	}
	if queries.Dim != database.Dim {
		return errors.ShapeMismatchError(fmt.Sprintf(
			"query dim %d does not match database dim %d", queries.Dim, database.Dim))
	}
	return nil
}
