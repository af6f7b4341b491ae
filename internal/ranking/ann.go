package ranking

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/irbench/ir-bench/internal/features"
	"github.com/irbench/ir-bench/internal/pkg/errors"
	"github.com/irbench/ir-bench/internal/qdrant"
	"github.com/irbench/ir-bench/internal/scoring"
)

// missingScore fills matrix cells the ANN search did not return. It is
// below any cosine similarity, so unreturned pairs rank last.
const missingScore = float32(-1.0)

// AnnOptions configures the Qdrant-backed engine.
type AnnOptions struct {
	// Collection is the feature collection name (without prefix).
	Collection string

	// Dataset restricts searches and tags upserted points.
	Dataset string

	// Limit is the number of neighbors retrieved per query.
	Limit uint64

	// BatchSize bounds upsert batches. Zero means the client default.
	BatchSize int

	// Names optionally labels upserted points by database index.
	Names []string

	// Workers bounds concurrent query searches. Zero means 8.
	Workers int
}

// vectorStore is the part of the qdrant client the ANN engine uses.
type vectorStore interface {
	EnsureCollection(ctx context.Context, cfg qdrant.CollectionConfig) error
	UpsertFeaturesBatch(ctx context.Context, collection string, points []qdrant.FeaturePoint, batchSize int) error
	DenseSearch(ctx context.Context, collection string, req qdrant.SearchRequest) ([]qdrant.SearchResult, error)
}

// AnnEngine ranks with a Qdrant ANN index instead of an exhaustive
// matrix product. Every Similarity call re-upserts the database
// features; upserts are keyed by database index, so repeated runs
// against the same collection stay consistent.
type AnnEngine struct {
	client vectorStore
	opts   AnnOptions
}

// NewAnnEngine creates a Qdrant-backed similarity engine.
func NewAnnEngine(client *qdrant.Client, opts AnnOptions) *AnnEngine {
	if opts.Limit == 0 {
		opts.Limit = 100
	}
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	return &AnnEngine{client: client, opts: opts}
}

// Name identifies the engine in run records and logs.
func (e *AnnEngine) Name() string { return "qdrant" }

// Similarity indexes the database features and searches them with every
// query. Cells the ANN search does not return hold a score of -1.
func (e *AnnEngine) Similarity(ctx context.Context, queries, database *features.FeatureSet) (scoring.SimilarityMatrix, error) {
	if err := checkShapes(queries, database); err != nil {
		return scoring.SimilarityMatrix{}, err
	}

	if err := e.indexDatabase(ctx, database); err != nil {
		return scoring.SimilarityMatrix{}, err
	}

	nq := queries.Len()
	nd := database.Len()

	data := make([]float32, nq*nd)
	for i := range data {
		data[i] = missingScore
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)

	for q := 0; q < nq; q++ {
		g.Go(func() error {
			results, err := e.client.DenseSearch(gctx, e.opts.Collection, qdrant.SearchRequest{
				Vector:  queries.Row(q),
				Limit:   e.opts.Limit,
				Dataset: e.opts.Dataset,
			})
			if err != nil {
				return errors.RankingError(fmt.Sprintf("ann search for query %d failed", q), err)
			}

			row := data[q*nd : (q+1)*nd]
			for _, r := range results {
				if r.Index < 0 || r.Index >= int64(nd) {
					return errors.RankingError(fmt.Sprintf(
						"ann search returned index %d outside database of %d", r.Index, nd), nil)
				}
				row[r.Index] = r.Score
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return scoring.SimilarityMatrix{}, err
	}

	return scoring.NewSimilarityMatrix(nq, nd, data)
}

// indexDatabase makes sure the collection exists and holds the current
// database features.
func (e *AnnEngine) indexDatabase(ctx context.Context, database *features.FeatureSet) error {
	err := e.client.EnsureCollection(ctx, qdrant.DefaultCollectionConfig(e.opts.Collection, uint64(database.Dim)))
	if err != nil {
		return errors.QdrantError("failed to ensure feature collection", err)
	}

	// Point IDs are row positions so that search results map straight
	// onto similarity matrix columns.
	points := make([]qdrant.FeaturePoint, database.Len())
	for i := range points {
		points[i] = qdrant.FeaturePoint{
			Index:   int64(i),
			Name:    e.pointName(i),
			Dataset: e.opts.Dataset,
			Vector:  database.Row(i),
		}
	}

	if err := e.client.UpsertFeaturesBatch(ctx, e.opts.Collection, points, e.opts.BatchSize); err != nil {
		return errors.QdrantError("failed to upsert database features", err)
	}

	return nil
}

func (e *AnnEngine) pointName(i int) string {
	if i < len(e.opts.Names) {
		return e.opts.Names[i]
	}
	return ""
}
