// Package evaluation orchestrates benchmark evaluations. A run loads the
// benchmark's ground truth and feature vectors, ranks every query against
// the database with the configured engine, scores the ranking under the
// benchmark's protocol and persists the outcome as a run record.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/irbench/ir-bench/internal/bus"
	"github.com/irbench/ir-bench/internal/config"
	"github.com/irbench/ir-bench/internal/dataset"
	"github.com/irbench/ir-bench/internal/extract"
	"github.com/irbench/ir-bench/internal/features"
	"github.com/irbench/ir-bench/internal/metrics"
	apperrors "github.com/irbench/ir-bench/internal/pkg/errors"
	"github.com/irbench/ir-bench/internal/pkg/logger"
	"github.com/irbench/ir-bench/internal/pkg/reqctx"
	"github.com/irbench/ir-bench/internal/qdrant"
	"github.com/irbench/ir-bench/internal/ranking"
	"github.com/irbench/ir-bench/internal/runstore"
	"github.com/irbench/ir-bench/internal/scoring"
)

// errNoFeatures reports that a split has neither a merged feature file nor
// shards on disk, which routes the evaluator to on-the-fly extraction.
var errNoFeatures = errors.New("no features on disk")

// Evaluator runs benchmark evaluations end to end.
type Evaluator struct {
	cfg     config.Config
	runs    *runstore.Service
	qdrant  *qdrant.Client
	bus     bus.Bus
	metrics *metrics.Metrics
	log     *logger.Logger
}

// NewEvaluator creates an evaluator. The qdrant client, event bus and
// metrics are optional.
func NewEvaluator(cfg config.Config, runs *runstore.Service, qc *qdrant.Client, eventBus bus.Bus, m *metrics.Metrics, log *logger.Logger) *Evaluator {
	if log == nil {
		log = logger.Default()
	}
	return &Evaluator{
		cfg:     cfg,
		runs:    runs,
		qdrant:  qc,
		bus:     eventBus,
		metrics: m,
		log:     log.WithComponent("evaluation"),
	}
}

// Run executes an evaluation synchronously and returns the finished
// record. When the evaluation itself fails, the failed record is returned
// together with the error.
func (e *Evaluator) Run(ctx context.Context, req Request) (*runstore.Run, error) {
	run, engine, err := e.prepare(ctx, &req)
	if err != nil {
		return nil, err
	}
	if err := e.execute(ctx, run, engine, req); err != nil {
		return run, err
	}
	return run, nil
}

// Start launches an evaluation in the background and returns the running
// record. Poll the run store for the outcome.
func (e *Evaluator) Start(ctx context.Context, req Request) (*runstore.Run, error) {
	run, engine, err := e.prepare(ctx, &req)
	if err != nil {
		return nil, err
	}
	// Hand back a snapshot; the background goroutine keeps mutating the
	// record until the run finishes.
	snapshot := *run
	go func() {
		// Detached from the request context so the evaluation outlives
		// the HTTP response that launched it. Failures are recorded on
		// the run.
		_ = e.execute(context.Background(), run, engine, req)
	}()
	return &snapshot, nil
}

// prepare validates the request, fills configuration defaults and creates
// the running record.
func (e *Evaluator) prepare(ctx context.Context, req *Request) (*runstore.Run, ranking.Engine, error) {
	if req.Dataset == "" {
		return nil, nil, apperrors.ValidationError("dataset is required")
	}
	if dataset.IsWhitening(req.Dataset) {
		return nil, nil, apperrors.ValidationError("the whitening image list has no queries to evaluate")
	}

	if req.Engine == "" {
		req.Engine = e.cfg.Ranking.Engine
	}
	if req.FeaturesDir == "" {
		req.FeaturesDir = e.cfg.Features.Dir
	}
	if req.Layer == "" {
		req.Layer = e.cfg.Features.Layer
	}
	if req.Layer == "" {
		req.Layer = "heads"
	}
	if len(req.Ks) == 0 {
		req.Ks = e.cfg.Scoring.Ks
	}
	if len(req.Ks) == 0 {
		req.Ks = scoring.DefaultKs
	}

	rcfg := e.cfg.Ranking
	rcfg.Engine = req.Engine
	engine, err := ranking.NewFromConfig(rcfg, e.qdrant, req.Dataset)
	if err != nil {
		return nil, nil, err
	}

	run := runstore.NewRun(req.Dataset, engine.Name())
	run.Ks = req.Ks
	if err := e.runs.Save(ctx, run); err != nil {
		return nil, nil, err
	}

	e.publish(ctx, bus.TopicEvaluationStarted, map[string]any{
		"run_id":  run.ID,
		"dataset": req.Dataset,
		"engine":  engine.Name(),
	})
	e.log.WithDataset(req.Dataset).WithRun(run.ID).Info("Starting evaluation", "engine", engine.Name())
	return run, engine, nil
}

// execute drives one prepared run to a terminal status, taking care of
// persistence, metrics and lifecycle events on both paths.
func (e *Evaluator) execute(ctx context.Context, run *runstore.Run, engine ranking.Engine, req Request) error {
	// The context carries the run ID to everything downstream; on server
	// calls it already carries the request ID of the HTTP request too.
	ctx = reqctx.WithRunID(ctx, run.ID)
	log := e.log.WithContext(ctx).WithDataset(req.Dataset)
	start := time.Now()

	result, err := e.evaluate(ctx, run, engine, req, log)
	durationMs := time.Since(start).Milliseconds()

	if err != nil {
		run.Fail(err)
		if saveErr := e.runs.Save(ctx, run); saveErr != nil {
			log.WithError(saveErr).Error("Failed to save failed run")
		}
		if e.metrics != nil {
			e.metrics.RecordEvaluation(req.Dataset, run.Engine, durationMs, err)
			e.metrics.RecordScoringError(apperrors.Code(err))
		}
		e.publish(ctx, bus.TopicEvaluationFailed, map[string]any{
			"run_id":      run.ID,
			"dataset":     req.Dataset,
			"engine":      run.Engine,
			"duration_ms": durationMs,
			"error":       err.Error(),
		})
		log.WithError(err).Error("Evaluation failed", "duration_ms", durationMs)
		return err
	}

	run.Complete(result)
	if err := e.runs.Save(ctx, run); err != nil {
		log.WithError(err).Error("Failed to save completed run")
	}

	mAP := headlineMAP(result)
	if e.metrics != nil {
		e.metrics.RecordEvaluation(req.Dataset, run.Engine, durationMs, nil)
		e.metrics.RecordQueriesScored(resultQueries(result))
		e.recordMAP(req.Dataset, result)
	}
	e.publish(ctx, bus.TopicEvaluationCompleted, map[string]any{
		"run_id":      run.ID,
		"dataset":     req.Dataset,
		"engine":      run.Engine,
		"duration_ms": durationMs,
		"map":         mAP,
	})
	log.Info("Evaluation completed", "map", mAP, "duration_ms", durationMs)
	return nil
}

// evaluate produces the run's result: features in, similarity, scores out.
func (e *Evaluator) evaluate(ctx context.Context, run *runstore.Run, engine ranking.Engine, req Request, log *logger.Logger) (*runstore.Result, error) {
	ds, err := dataset.Load(dataset.Options{
		Root:     e.cfg.Datasets.Root,
		ListFile: e.cfg.Datasets.ListFile,
	}, req.Dataset)
	if err != nil {
		return nil, err
	}

	queries, database, err := e.loadFeatures(ctx, ds, req, log)
	if err != nil {
		return nil, err
	}
	run.Fingerprint = queries.Fingerprint() + ":" + database.Fingerprint()

	if queries.Len() != ds.NumQueries() {
		return nil, apperrors.ShapeMismatchError(fmt.Sprintf(
			"query features have %d rows, %s has %d queries", queries.Len(), ds.Name(), ds.NumQueries()))
	}
	if database.Len() != ds.NumDatabase() {
		return nil, apperrors.ShapeMismatchError(fmt.Sprintf(
			"database features have %d rows, %s has %d database images", database.Len(), ds.Name(), ds.NumDatabase()))
	}
	if e.metrics != nil {
		e.metrics.SetFeatureRows(extract.SplitQuery, queries.Len())
		e.metrics.SetFeatureRows(extract.SplitDatabase, database.Len())
	}

	simStart := time.Now()
	sim, err := engine.Similarity(ctx, queries, database)
	if err != nil {
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.RecordSimilarity(engine.Name(), time.Since(simStart).Milliseconds())
	}

	return score(ds, sim, req.Ks)
}

// loadFeatures returns the query and database feature sets of the
// benchmark. A merged file in the features directory wins; otherwise the
// shards found there are merged in place; with nothing on disk at all the
// configured embedder extracts features from the benchmark images.
func (e *Evaluator) loadFeatures(ctx context.Context, ds dataset.Dataset, req Request, log *logger.Logger) (*features.FeatureSet, *features.FeatureSet, error) {
	queries, qerr := e.loadSplit(req.FeaturesDir, extract.SplitQuery, req.Layer)
	if qerr != nil && !errors.Is(qerr, errNoFeatures) {
		return nil, nil, qerr
	}
	database, derr := e.loadSplit(req.FeaturesDir, extract.SplitDatabase, req.Layer)
	if derr != nil && !errors.Is(derr, errNoFeatures) {
		return nil, nil, derr
	}
	if qerr == nil && derr == nil {
		return queries, database, nil
	}

	log.Info("Features missing, extracting from images", "dir", req.FeaturesDir, "layer", req.Layer)
	embedder, err := extract.NewEmbedder(e.cfg.Extract)
	if err != nil {
		return nil, nil, err
	}
	// On-the-fly extraction always covers the whole benchmark on this
	// node; multi-node extraction goes through shard files instead.
	pipeline := extract.NewPipeline(embedder, e.bus, e.log, extract.Options{
		BatchSize:  e.cfg.Extract.BatchSize,
		Workers:    e.cfg.Extract.Workers,
		ResizeSide: e.cfg.Datasets.ResizeSide,
	})
	if qerr != nil {
		if queries, err = pipeline.ExtractQueries(ctx, ds); err != nil {
			return nil, nil, err
		}
	}
	if derr != nil {
		if database, err = pipeline.ExtractDatabase(ctx, ds); err != nil {
			return nil, nil, err
		}
	}
	return queries, database, nil
}

// loadSplit reads one split's features from the directory: first a merged
// file as written by the watcher or the merge command, then a merge of the
// shard files present.
func (e *Evaluator) loadSplit(dir, split, layer string) (*features.FeatureSet, error) {
	name := split + "_" + layer
	for _, ext := range []string{features.ExtGob, features.ExtHDF5} {
		path := filepath.Join(dir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return features.Open(path)
		}
	}

	shards, err := features.Discover(dir, split, layer)
	if err != nil || len(shards) == 0 {
		return nil, errNoFeatures
	}
	return features.Merge(dir, split, layer, e.cfg.Features.WorldSize)
}

// score runs the benchmark's protocol over the similarity matrix.
func score(ds dataset.Dataset, sim scoring.SimilarityMatrix, ks []int) (*runstore.Result, error) {
	if ds.Tiered() {
		gnd := make([]scoring.TieredRelevance, ds.NumQueries())
		for i := range gnd {
			rel := ds.GroundTruth(i)
			gnd[i] = scoring.TieredRelevance{
				Name: ds.QueryName(i),
				Easy: rel.Easy,
				Hard: rel.Hard,
				Junk: rel.Junk,
			}
		}
		tiered, err := scoring.Tiered(sim, gnd, ks)
		if err != nil {
			return nil, err
		}
		return &runstore.Result{Tiered: &tiered}, nil
	}

	rel := make([]scoring.QueryRelevance, ds.NumQueries())
	for i := range rel {
		g := ds.GroundTruth(i)
		rel[i] = scoring.QueryRelevance{
			Name:     ds.QueryName(i),
			Positive: g.Good,
			Junk:     g.Junk,
		}
	}
	global, err := scoring.Score(sim, rel, ks)
	if err != nil {
		return nil, err
	}
	result := &runstore.Result{Global: &global}

	if instre, ok := ds.(*dataset.Instre); ok {
		// Fewer than ten queries leave the validation subset empty.
		if subset := instre.ValSubset(); len(subset) > 0 {
			val, err := valSubsetMAP(sim, rel, subset, ks)
			if err != nil {
				return nil, err
			}
			result.MAPVal = &val
		}
	}
	return result, nil
}

// valSubsetMAP scores only the validation queries, the subset INSTRE uses
// for hyperparameter selection.
func valSubsetMAP(sim scoring.SimilarityMatrix, rel []scoring.QueryRelevance, subset []int, ks []int) (float64, error) {
	sub := scoring.SimilarityMatrix{
		Rows: len(subset),
		Cols: sim.Cols,
		Data: make([]float32, 0, len(subset)*sim.Cols),
	}
	subRel := make([]scoring.QueryRelevance, 0, len(subset))
	for _, q := range subset {
		sub.Data = append(sub.Data, sim.Row(q)...)
		subRel = append(subRel, rel[q])
	}
	agg, err := scoring.Score(sub, subRel, ks)
	if err != nil {
		return 0, err
	}
	return agg.MAP, nil
}

// resultQueries counts the benchmark queries a result scored. Tiered
// views rescore the same queries, so one view's count is the total.
func resultQueries(result *runstore.Result) int {
	switch {
	case result == nil:
		return 0
	case result.Tiered != nil:
		return result.Tiered.Medium.NumQueries
	case result.Global != nil:
		return result.Global.NumQueries
	}
	return 0
}

// headlineMAP picks the single figure a run is quoted by. Tiered runs
// headline the Medium view.
func headlineMAP(result *runstore.Result) float64 {
	switch {
	case result == nil:
		return 0
	case result.Tiered != nil:
		return result.Tiered.Medium.MAP
	case result.Global != nil:
		return result.Global.MAP
	}
	return 0
}

// recordMAP exports the run's mAP figures as gauges.
func (e *Evaluator) recordMAP(dataset string, result *runstore.Result) {
	switch {
	case result == nil:
	case result.Tiered != nil:
		e.metrics.SetMAP(dataset, "easy", result.Tiered.Easy.MAP)
		e.metrics.SetMAP(dataset, "medium", result.Tiered.Medium.MAP)
		e.metrics.SetMAP(dataset, "hard", result.Tiered.Hard.MAP)
	case result.Global != nil:
		e.metrics.SetMAP(dataset, "global", result.Global.MAP)
	}
}

// publish sends an evaluation lifecycle event when a bus is attached.
// Delivery is advisory and never fails the evaluation.
func (e *Evaluator) publish(ctx context.Context, topic string, payload map[string]any) {
	if e.bus == nil {
		return
	}
	if err := e.bus.Publish(ctx, topic, bus.NewEvent(topic, "evaluation", payload)); err != nil {
		e.log.Warn("Failed to publish evaluation event",
			"topic", topic,
			"error", err.Error(),
		)
	}
}
