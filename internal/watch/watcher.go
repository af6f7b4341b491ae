// Package watch runs a daemon over a shard drop directory, merging the
// per-rank feature shards of an extraction job as soon as every rank
// has delivered its file.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/irbench/ir-bench/internal/bus"
	"github.com/irbench/ir-bench/internal/features"
	apperrors "github.com/irbench/ir-bench/internal/pkg/errors"
	"github.com/irbench/ir-bench/internal/pkg/logger"
)

// MergedFunc is called after a complete shard set has been merged and
// written. path is the merged feature file.
type MergedFunc func(split, path string, set *features.FeatureSet)

type Watcher struct {
	dir     string
	outDir  string
	dataset string
	layer   string
	world   int
	ext     string

	eventBus bus.Bus
	onMerged MergedFunc
	ignore   *IgnoreFilter

	// Batch processing
	pendingMu     sync.Mutex
	pendingSplits map[string]struct{}
	batchTimer    *time.Timer
	batchDelay    time.Duration

	// Stats
	statsMu    sync.Mutex
	merged     map[string]string
	mergeCount int
	lastMerge  time.Time

	// Lifecycle
	done chan struct{}
	log  *logger.Logger
}

type WatcherConfig struct {
	Dir        string        // shard drop directory
	OutDir     string        // merged output directory, defaults to Dir
	Dataset    string        // dataset tag carried on events
	Layer      string        // feature layer, defaults to "heads"
	World      int           // number of extraction ranks to wait for
	Codec      string        // codec of the merged file, "gob" or "hdf5"
	BatchDelay time.Duration // Default: 500ms
	Bus        bus.Bus       // optional, merge events are advisory
	OnMerged   MergedFunc    // optional merge hook
}

func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.World < 1 {
		return nil, apperrors.ValidationError("watcher needs a world size of at least 1")
	}
	if cfg.Layer == "" {
		cfg.Layer = "heads"
	}
	if cfg.BatchDelay == 0 {
		cfg.BatchDelay = 500 * time.Millisecond
	}

	ignore, err := NewIgnoreFilter(cfg.Dir)
	if err != nil {
		return nil, err
	}

	absPath, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, err
	}

	outDir := cfg.OutDir
	if outDir == "" {
		outDir = absPath
	}

	ext := features.ExtGob
	if cfg.Codec == "hdf5" {
		ext = features.ExtHDF5
	}

	return &Watcher{
		dir:           absPath,
		outDir:        outDir,
		dataset:       cfg.Dataset,
		layer:         cfg.Layer,
		world:         cfg.World,
		ext:           ext,
		eventBus:      cfg.Bus,
		onMerged:      cfg.OnMerged,
		ignore:        ignore,
		pendingSplits: make(map[string]struct{}),
		batchDelay:    cfg.BatchDelay,
		merged:        make(map[string]string),
		done:          make(chan struct{}),
		log:           logger.Default().WithComponent("watcher"),
	}, nil
}

func (w *Watcher) Start(ctx context.Context) error {
	w.log.Info("Starting shard watcher",
		"dir", w.dir, "layer", w.layer, "world", w.world)

	// Merge whatever is already complete on disk
	if err := w.initialScan(ctx); err != nil {
		w.log.Error("Initial scan failed", "error", err)
		return fmt.Errorf("initial scan failed: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsWatcher.Close()

	if err := fsWatcher.Add(w.dir); err != nil {
		return err
	}

	w.log.Info("Watching for shards", "dir", w.dir)

	// Event loop
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.done:
			return nil
		case event, ok := <-fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)
		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.log.Error("Watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	path := event.Name

	if w.ignore.ShouldIgnore(path) {
		return
	}

	// Only file arrivals and writes matter. A removed shard cannot
	// complete a set, and the merged output never carries a rank prefix
	// so it does not come back around through here.
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	rank, ok := features.ShardRank(path)
	if !ok {
		return
	}
	split, ok := features.ShardSplit(path, w.layer)
	if !ok {
		return
	}

	w.publish(ctx, bus.TopicShardDetected, map[string]any{
		"dataset": w.dataset,
		"split":   split,
		"rank":    rank,
		"path":    path,
	})

	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	w.pendingSplits[split] = struct{}{}

	// Reset batch timer
	if w.batchTimer != nil {
		w.batchTimer.Stop()
	}
	w.batchTimer = time.AfterFunc(w.batchDelay, func() {
		w.processBatch(context.Background())
	})
}

func (w *Watcher) processBatch(ctx context.Context) {
	w.pendingMu.Lock()
	splits := make([]string, 0, len(w.pendingSplits))
	for split := range w.pendingSplits {
		splits = append(splits, split)
	}
	w.pendingSplits = make(map[string]struct{})
	w.pendingMu.Unlock()

	if len(splits) == 0 {
		return
	}
	sort.Strings(splits)

	for _, split := range splits {
		w.tryMerge(ctx, split)
	}
}

// tryMerge merges one split when every rank has delivered a shard. An
// incomplete set is left alone; the next shard event revisits it.
func (w *Watcher) tryMerge(ctx context.Context, split string) {
	shards, err := features.Discover(w.dir, split, w.layer)
	if err != nil {
		w.log.Error("Shard discovery failed", "split", split, "error", err)
		return
	}
	if !features.Complete(shards, w.world) {
		w.log.Debug("Shard set incomplete",
			"split", split, "have", len(shards), "want", w.world)
		return
	}

	set, err := features.Merge(w.dir, split, w.layer, w.world)
	if err != nil {
		// A shard may still be mid-write; the writer's next event retries
		w.log.Warn("Merge failed", "split", split, "error", err)
		return
	}

	outPath := filepath.Join(w.outDir, fmt.Sprintf("%s_%s%s", split, w.layer, w.ext))
	if err := os.MkdirAll(w.outDir, 0o755); err != nil {
		w.log.Error("Creating output directory failed", "dir", w.outDir, "error", err)
		return
	}
	if err := features.Save(outPath, set); err != nil {
		w.log.Error("Writing merged features failed", "path", outPath, "error", err)
		return
	}

	w.statsMu.Lock()
	w.merged[split] = outPath
	w.mergeCount++
	w.lastMerge = time.Now()
	w.statsMu.Unlock()

	w.log.Info("Merged shard set",
		"split", split, "shards", len(shards), "rows", set.Len(), "path", outPath)

	w.publish(ctx, bus.TopicFeaturesMerged, map[string]any{
		"dataset": w.dataset,
		"split":   split,
		"layer":   w.layer,
		"shards":  len(shards),
		"rows":    set.Len(),
		"path":    outPath,
	})

	if w.onMerged != nil {
		w.onMerged(split, outPath, set)
	}
}

// initialScan enqueues every split that already has shards on disk and
// merges the complete ones before the watch loop begins.
func (w *Watcher) initialScan(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}

	seen := make(map[string]struct{})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(w.dir, entry.Name())
		if w.ignore.ShouldIgnore(path) {
			continue
		}
		if _, ok := features.ShardRank(entry.Name()); !ok {
			continue
		}
		split, ok := features.ShardSplit(entry.Name(), w.layer)
		if !ok {
			continue
		}
		seen[split] = struct{}{}
	}

	splits := make([]string, 0, len(seen))
	for split := range seen {
		splits = append(splits, split)
	}
	sort.Strings(splits)

	for _, split := range splits {
		w.tryMerge(ctx, split)
	}
	return nil
}

func (w *Watcher) publish(ctx context.Context, topic string, payload map[string]any) {
	if w.eventBus == nil {
		return
	}
	if err := w.eventBus.Publish(ctx, topic, bus.NewEvent(topic, "watcher", payload)); err != nil {
		w.log.Warn("Publishing event failed", "topic", topic, "error", err)
	}
}

func (w *Watcher) Stop() {
	close(w.done)
}

// Stats returns the number of merges performed and the last merge time.
func (w *Watcher) Stats() (int, time.Time) {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	return w.mergeCount, w.lastMerge
}

// MergedSets returns the merged output file per split.
func (w *Watcher) MergedSets() map[string]string {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()

	result := make(map[string]string, len(w.merged))
	for split, path := range w.merged {
		result[split] = path
	}
	return result
}
