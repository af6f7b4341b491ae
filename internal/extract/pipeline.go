package extract

import (
	"context"
	"fmt"
	stdimage "image"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/irbench/ir-bench/internal/bus"
	"github.com/irbench/ir-bench/internal/dataset"
	"github.com/irbench/ir-bench/internal/distributed"
	"github.com/irbench/ir-bench/internal/features"
	"github.com/irbench/ir-bench/internal/image"
	"github.com/irbench/ir-bench/internal/pkg/errors"
	"github.com/irbench/ir-bench/internal/pkg/logger"
)

// Shard split names.
const (
	SplitDatabase = "database"
	SplitQuery    = "query"
	SplitTrain    = "train"
)

// Options configures an extraction pipeline.
type Options struct {
	// BatchSize is the number of images per embedder call.
	BatchSize int

	// Workers bounds concurrent image loading.
	Workers int

	// NodeID and NumNodes select this node's share of the images.
	NodeID   int
	NumNodes int

	// ResizeSide is the resize policy passed to the image loader.
	ResizeSide int

	// Progress, when set, is called after every finished batch.
	Progress func(done, total int)
}

// ProgressEvent is the payload of extraction bus events.
type ProgressEvent struct {
	Dataset   string `json:"dataset"`
	Split     string `json:"split"`
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
	Node      int    `json:"node"`
}

// Pipeline extracts features for one node's share of a dataset.
type Pipeline struct {
	embedder Embedder
	bus      bus.Bus
	log      *logger.Logger
	opts     Options
}

// NewPipeline creates an extraction pipeline. The event bus is optional.
func NewPipeline(embedder Embedder, eventBus bus.Bus, log *logger.Logger, opts Options) *Pipeline {
	if log == nil {
		log = logger.Default()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.NumNodes <= 0 {
		opts.NumNodes = 1
	}
	if opts.ResizeSide == 0 {
		opts.ResizeSide = 1024
	}
	return &Pipeline{
		embedder: embedder,
		bus:      eventBus,
		log:      log.WithComponent("extract"),
		opts:     opts,
	}
}

// ExtractDatabase embeds this node's share of the database images.
func (p *Pipeline) ExtractDatabase(ctx context.Context, ds dataset.Dataset) (*features.FeatureSet, error) {
	return p.run(ctx, ds.Name(), SplitDatabase, ds.NumDatabase(), func(ctx context.Context, i int) (stdimage.Image, error) {
		img, err := image.Load(ds.DatabasePath(i))
		if err != nil {
			return nil, err
		}
		resized, _ := image.Resize(img, p.opts.ResizeSide)
		return resized, nil
	})
}

// ExtractTraining embeds this node's share of a whitening list. Whitening
// lists carry no queries, so their images land in the train split.
func (p *Pipeline) ExtractTraining(ctx context.Context, ds dataset.Dataset) (*features.FeatureSet, error) {
	return p.run(ctx, ds.Name(), SplitTrain, ds.NumDatabase(), func(ctx context.Context, i int) (stdimage.Image, error) {
		img, err := image.Load(ds.DatabasePath(i))
		if err != nil {
			return nil, err
		}
		resized, _ := image.Resize(img, p.opts.ResizeSide)
		return resized, nil
	})
}

// ExtractQueries embeds this node's share of the query images. Queries
// with a region of interest are cropped to it after resizing.
func (p *Pipeline) ExtractQueries(ctx context.Context, ds dataset.Dataset) (*features.FeatureSet, error) {
	return p.run(ctx, ds.Name(), SplitQuery, ds.NumQueries(), func(ctx context.Context, i int) (stdimage.Image, error) {
		img, err := image.Load(ds.QueryPath(i))
		if err != nil {
			return nil, err
		}
		resized, ratio := image.Resize(img, p.opts.ResizeSide)
		if roi, ok := ds.QueryROI(i); ok {
			return image.CropROI(resized, roi, ratio)
		}
		return resized, nil
	})
}

// run drives batched loading and embedding for one split.
func (p *Pipeline) run(ctx context.Context, datasetName, split string, total int, load func(ctx context.Context, i int) (stdimage.Image, error)) (*features.FeatureSet, error) {
	indices, err := distributed.NodeSlice(total, p.opts.NodeID, p.opts.NumNodes)
	if err != nil {
		return nil, err
	}

	p.log.Info("Starting feature extraction",
		"dataset", datasetName,
		"split", split,
		"images", len(indices),
		"node", p.opts.NodeID,
	)
	p.publish(ctx, bus.TopicExtractStarted, ProgressEvent{
		Dataset: datasetName,
		Split:   split,
		Total:   len(indices),
		Node:    p.opts.NodeID,
	})

	dim := p.embedder.Dim()
	set := &features.FeatureSet{
		Dim:      dim,
		Features: make([]float32, 0, len(indices)*dim),
		Indices:  make([]int64, 0, len(indices)),
	}

	for start := 0; start < len(indices); start += p.opts.BatchSize {
		end := start + p.opts.BatchSize
		if end > len(indices) {
			end = len(indices)
		}
		batch := indices[start:end]

		imgs, err := p.loadBatch(ctx, batch, load)
		if err != nil {
			return nil, err
		}

		vecs, err := p.embedder.Embed(ctx, imgs)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(batch) {
			return nil, errors.FeatureError(fmt.Sprintf(
				"embedder returned %d vectors for %d images", len(vecs), len(batch)), nil)
		}

		for j, vec := range vecs {
			if len(vec) != dim {
				return nil, errors.FeatureError(fmt.Sprintf(
					"embedding for image %d has dim %d, want %d", batch[j], len(vec), dim), nil)
			}
			l2Normalize(vec)
			set.Features = append(set.Features, vec...)
			set.Indices = append(set.Indices, int64(batch[j]))
		}

		done := end
		if p.opts.Progress != nil {
			p.opts.Progress(done, len(indices))
		}
		p.publish(ctx, bus.TopicExtractProgress, ProgressEvent{
			Dataset:   datasetName,
			Split:     split,
			Processed: done,
			Total:     len(indices),
			Node:      p.opts.NodeID,
		})
	}

	p.log.Info("Finished feature extraction",
		"dataset", datasetName,
		"split", split,
		"count", set.Len(),
		"dim", dim,
	)
	p.publish(ctx, bus.TopicExtractDone, ProgressEvent{
		Dataset:   datasetName,
		Split:     split,
		Processed: set.Len(),
		Total:     len(indices),
		Node:      p.opts.NodeID,
	})

	return set, nil
}

// loadBatch loads and prepares one batch of images concurrently. The
// slice order matches the batch order.
func (p *Pipeline) loadBatch(ctx context.Context, batch []int, load func(ctx context.Context, i int) (stdimage.Image, error)) ([]stdimage.Image, error) {
	imgs := make([]stdimage.Image, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)

	for j, gi := range batch {
		g.Go(func() error {
			img, err := load(gctx, gi)
			if err != nil {
				return errors.DatasetError(fmt.Sprintf("failed to load image %d", gi), err)
			}
			imgs[j] = img
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return imgs, nil
}

// publish sends an extraction event when a bus is attached. Event
// delivery is advisory and never fails the extraction.
func (p *Pipeline) publish(ctx context.Context, topic string, payload ProgressEvent) {
	if p.bus == nil {
		return
	}
	if err := p.bus.Publish(ctx, topic, bus.NewEvent(topic, "extract", payload)); err != nil {
		p.log.Warn("Failed to publish extraction event",
			"topic", topic,
			"error", err.Error(),
		)
	}
}

// WriteShard saves a feature set as this node's shard file.
func WriteShard(dir string, rank int, split, layer, codec string, set *features.FeatureSet) (string, error) {
	ext := features.ExtGob
	if codec == "hdf5" {
		ext = features.ExtHDF5
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.FeatureError("failed to create shard directory", err)
	}

	path := filepath.Join(dir, features.ShardName(rank, split, layer, ext))
	if err := features.Save(path, set); err != nil {
		return "", err
	}
	return path, nil
}
