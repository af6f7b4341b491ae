package ranking

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/irbench/ir-bench/internal/config"
	"github.com/irbench/ir-bench/internal/features"
	apperrors "github.com/irbench/ir-bench/internal/pkg/errors"
)

const tol = 1e-6

func featureSet(dim int, rows ...[]float32) *features.FeatureSet {
	set := &features.FeatureSet{Dim: dim}
	for _, row := range rows {
		set.Features = append(set.Features, row...)
	}
	return set
}

func TestExactEngine_Similarity(t *testing.T) {
	queries := featureSet(3,
		[]float32{1, 0, 0},
		[]float32{0, 1, 0},
	)
	database := featureSet(3,
		[]float32{1, 0, 0},
		[]float32{0, 1, 0},
		[]float32{0.6, 0.8, 0},
	)

	sim, err := NewExactEngine().Similarity(context.Background(), queries, database)
	if err != nil {
		t.Fatalf("Similarity() error = %v", err)
	}

	if sim.Rows != 2 || sim.Cols != 3 {
		t.Fatalf("Similarity() shape = %dx%d, want 2x3", sim.Rows, sim.Cols)
	}

	want := [][]float32{
		{1, 0, 0.6},
		{0, 1, 0.8},
	}
	for q := range want {
		for d := range want[q] {
			if got := sim.At(q, d); math.Abs(float64(got-want[q][d])) > tol {
				t.Errorf("At(%d, %d) = %f, want %f", q, d, got, want[q][d])
			}
		}
	}
}

func TestExactEngine_SingleQuery(t *testing.T) {
	queries := featureSet(2, []float32{0.5, 0.5})
	database := featureSet(2,
		[]float32{1, 0},
		[]float32{0, 1},
		[]float32{1, 1},
	)

	sim, err := NewExactEngine().Similarity(context.Background(), queries, database)
	if err != nil {
		t.Fatalf("Similarity() error = %v", err)
	}

	want := []float32{0.5, 0.5, 1.0}
	for d, w := range want {
		if got := sim.At(0, d); math.Abs(float64(got-w)) > tol {
			t.Errorf("At(0, %d) = %f, want %f", d, got, w)
		}
	}
}

func TestExactEngine_Errors(t *testing.T) {
	tests := []struct {
		name     string
		queries  *features.FeatureSet
		database *features.FeatureSet
		wantCode string
	}{
		{
			name:     "empty queries",
			queries:  &features.FeatureSet{Dim: 4},
			database: featureSet(4, []float32{1, 0, 0, 0}),
			wantCode: apperrors.CodeEmptyQuerySet,
		},
		{
			name:     "nil queries",
			queries:  nil,
			database: featureSet(4, []float32{1, 0, 0, 0}),
			wantCode: apperrors.CodeEmptyQuerySet,
		},
		{
			name:     "empty database",
			queries:  featureSet(4, []float32{1, 0, 0, 0}),
			database: &features.FeatureSet{Dim: 4},
			wantCode: apperrors.CodeFeatureError,
		},
		{
			name:     "dimension mismatch",
			queries:  featureSet(4, []float32{1, 0, 0, 0}),
			database: featureSet(3, []float32{1, 0, 0}),
			wantCode: apperrors.CodeShapeMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewExactEngine().Similarity(context.Background(), tt.queries, tt.database)
			if err == nil {
				t.Fatal("Similarity() expected error, got nil")
			}

			var appErr *apperrors.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("Similarity() error type = %T, want *AppError", err)
			}
			if appErr.Code != tt.wantCode {
				t.Errorf("Similarity() code = %s, want %s", appErr.Code, tt.wantCode)
			}
		})
	}
}

func TestExactEngine_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	queries := featureSet(2, []float32{1, 0})
	database := featureSet(2, []float32{0, 1})

	if _, err := NewExactEngine().Similarity(ctx, queries, database); err == nil {
		t.Error("Similarity() expected error for canceled context")
	}
}

func TestNewFromConfig(t *testing.T) {
	engine, err := NewFromConfig(config.RankingConfig{Engine: "exact"}, nil, "roxford5k")
	if err != nil {
		t.Fatalf("NewFromConfig(exact) error = %v", err)
	}
	if engine.Name() != "exact" {
		t.Errorf("Name() = %s, want exact", engine.Name())
	}

	if _, err := NewFromConfig(config.RankingConfig{Engine: "qdrant"}, nil, "roxford5k"); err == nil {
		t.Error("NewFromConfig(qdrant) without client should error")
	}

	if _, err := NewFromConfig(config.RankingConfig{Engine: "faiss"}, nil, "roxford5k"); err == nil {
		t.Error("NewFromConfig(faiss) should error")
	}
}

func TestNewAnnEngine_Defaults(t *testing.T) {
	engine := NewAnnEngine(nil, AnnOptions{Collection: "roxford5k"})

	if engine.opts.Limit != 100 {
		t.Errorf("default Limit = %d, want 100", engine.opts.Limit)
	}
	if engine.opts.Workers != 8 {
		t.Errorf("default Workers = %d, want 8", engine.opts.Workers)
	}
	if engine.Name() != "qdrant" {
		t.Errorf("Name() = %s, want qdrant", engine.Name())
	}
}
