package extract

import (
	"context"
	"fmt"
	stdimage "image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/irbench/ir-bench/internal/bus"
	"github.com/irbench/ir-bench/internal/dataset"
	"github.com/irbench/ir-bench/internal/features"
	"github.com/irbench/ir-bench/internal/image"
)

// stubDataset serves generated PNG files from a temp directory.
type stubDataset struct {
	dir      string
	database []string
	queries  []string
	rois     map[int]image.ROI
}

func newStubDataset(t *testing.T, numDatabase, numQueries int) *stubDataset {
	t.Helper()
	dir := t.TempDir()
	ds := &stubDataset{dir: dir, rois: map[int]image.ROI{}}

	for i := 0; i < numDatabase; i++ {
		name := fmt.Sprintf("db_%03d.png", i)
		writeTestPNG(t, filepath.Join(dir, name), 24, 16, color.RGBA{R: uint8(i * 20), A: 255})
		ds.database = append(ds.database, name)
	}
	for i := 0; i < numQueries; i++ {
		name := fmt.Sprintf("q_%03d.png", i)
		writeTestPNG(t, filepath.Join(dir, name), 20, 20, color.RGBA{B: uint8(100 + i), A: 255})
		ds.queries = append(ds.queries, name)
	}
	return ds
}

func writeTestPNG(t *testing.T, path string, w, h int, c color.RGBA) {
	t.Helper()
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode %s: %v", path, err)
	}
}

func (d *stubDataset) Name() string     { return "stub" }
func (d *stubDataset) NumDatabase() int { return len(d.database) }
func (d *stubDataset) NumQueries() int  { return len(d.queries) }

func (d *stubDataset) DatabasePath(i int) string {
	return filepath.Join(d.dir, d.database[i])
}

func (d *stubDataset) QueryPath(i int) string {
	return filepath.Join(d.dir, d.queries[i])
}

func (d *stubDataset) QueryName(i int) string { return d.queries[i] }

func (d *stubDataset) QueryROI(i int) (image.ROI, bool) {
	roi, ok := d.rois[i]
	return roi, ok
}

func (d *stubDataset) GroundTruth(i int) dataset.Relevance { return dataset.Relevance{} }

func (d *stubDataset) Tiered() bool { return false }

func TestPipeline_ExtractDatabase(t *testing.T) {
	ds := newStubDataset(t, 5, 2)
	e := NewTinyImageEmbedder(4)
	p := NewPipeline(e, nil, nil, Options{BatchSize: 2, Workers: 2, ResizeSide: -1})

	set, err := p.ExtractDatabase(context.Background(), ds)
	if err != nil {
		t.Fatalf("ExtractDatabase() error = %v", err)
	}
	if set.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", set.Len())
	}
	if set.Dim != e.Dim() {
		t.Errorf("Dim = %d, want %d", set.Dim, e.Dim())
	}
	for i, idx := range set.Indices {
		if idx != int64(i) {
			t.Errorf("Indices[%d] = %d, want %d", i, idx, i)
		}
	}
	for i := 0; i < set.Len(); i++ {
		if norm := vectorNorm(set.Row(i)); norm < 0.999 || norm > 1.001 {
			t.Errorf("row %d has norm %f, want 1.0", i, norm)
		}
	}
}

func TestPipeline_ExtractQueries_WithROI(t *testing.T) {
	ds := newStubDataset(t, 1, 3)
	ds.rois[1] = image.ROI{Xmin: 2, Ymin: 2, Xmax: 18, Ymax: 18}

	e := NewTinyImageEmbedder(4)
	p := NewPipeline(e, nil, nil, Options{BatchSize: 2, ResizeSide: -1})

	set, err := p.ExtractQueries(context.Background(), ds)
	if err != nil {
		t.Fatalf("ExtractQueries() error = %v", err)
	}
	if set.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", set.Len())
	}
}

func TestPipeline_NodePartition(t *testing.T) {
	ds := newStubDataset(t, 7, 0)
	e := NewTinyImageEmbedder(4)

	var indices []int64
	for node := 0; node < 3; node++ {
		p := NewPipeline(e, nil, nil, Options{BatchSize: 4, NodeID: node, NumNodes: 3, ResizeSide: -1})
		set, err := p.ExtractDatabase(context.Background(), ds)
		if err != nil {
			t.Fatalf("node %d: ExtractDatabase() error = %v", node, err)
		}
		indices = append(indices, set.Indices...)
	}

	seen := map[int64]int{}
	for _, idx := range indices {
		seen[idx]++
	}
	if len(seen) != 7 {
		t.Fatalf("nodes covered %d distinct images, want 7", len(seen))
	}
	for idx, count := range seen {
		if count != 1 {
			t.Errorf("image %d extracted %d times, want 1", idx, count)
		}
	}
}

func TestPipeline_ProgressAndEvents(t *testing.T) {
	ds := newStubDataset(t, 4, 0)
	e := NewTinyImageEmbedder(4)

	memBus := bus.NewMemoryBus()

	var mu sync.Mutex
	var topics []string
	handler := func(ctx context.Context, event bus.Event) error {
		mu.Lock()
		topics = append(topics, event.Type)
		mu.Unlock()
		return nil
	}
	for _, topic := range []string{bus.TopicExtractStarted, bus.TopicExtractProgress, bus.TopicExtractDone} {
		if err := memBus.Subscribe(context.Background(), topic, handler); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", topic, err)
		}
	}

	var calls int
	var lastDone, lastTotal int
	p := NewPipeline(e, memBus, nil, Options{
		BatchSize:  2,
		ResizeSide: -1,
		Progress: func(done, total int) {
			calls++
			lastDone, lastTotal = done, total
		},
	})

	if _, err := p.ExtractDatabase(context.Background(), ds); err != nil {
		t.Fatalf("ExtractDatabase() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("progress called %d times, want 2", calls)
	}
	if lastDone != 4 || lastTotal != 4 {
		t.Errorf("final progress = %d/%d, want 4/4", lastDone, lastTotal)
	}

	memBus.Close()
	mu.Lock()
	defer mu.Unlock()
	counts := map[string]int{}
	for _, topic := range topics {
		counts[topic]++
	}
	if counts[bus.TopicExtractStarted] != 1 {
		t.Errorf("started events = %d, want 1", counts[bus.TopicExtractStarted])
	}
	if counts[bus.TopicExtractProgress] != 2 {
		t.Errorf("progress events = %d, want 2", counts[bus.TopicExtractProgress])
	}
	if counts[bus.TopicExtractDone] != 1 {
		t.Errorf("done events = %d, want 1", counts[bus.TopicExtractDone])
	}
}

func TestPipeline_MissingImage(t *testing.T) {
	ds := newStubDataset(t, 2, 0)
	ds.database[1] = "missing.png"

	p := NewPipeline(NewTinyImageEmbedder(4), nil, nil, Options{ResizeSide: -1})
	if _, err := p.ExtractDatabase(context.Background(), ds); err == nil {
		t.Fatal("expected error for missing image file")
	}
}

func TestPipeline_InvalidNode(t *testing.T) {
	ds := newStubDataset(t, 2, 0)
	p := NewPipeline(NewTinyImageEmbedder(4), nil, nil, Options{NodeID: 5, NumNodes: 2, ResizeSide: -1})
	if _, err := p.ExtractDatabase(context.Background(), ds); err == nil {
		t.Fatal("expected error for node id outside the node count")
	}
}

func TestWriteShard(t *testing.T) {
	dir := t.TempDir()
	set := &features.FeatureSet{
		Dim:      2,
		Features: []float32{1, 0, 0, 1},
		Indices:  []int64{0, 1},
	}

	path, err := WriteShard(dir, 3, SplitDatabase, "heads", "gob", set)
	if err != nil {
		t.Fatalf("WriteShard() error = %v", err)
	}
	if filepath.Base(path) != "rank3_database_heads.feat" {
		t.Errorf("shard file = %s, want rank3_database_heads.feat", filepath.Base(path))
	}

	loaded, err := features.Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if loaded.Len() != 2 || loaded.Dim != 2 {
		t.Errorf("loaded %d rows with dim %d, want 2 rows with dim 2", loaded.Len(), loaded.Dim)
	}
	for i := range set.Features {
		if loaded.Features[i] != set.Features[i] {
			t.Fatalf("Features[%d] = %f, want %f", i, loaded.Features[i], set.Features[i])
		}
	}
}

func TestWriteShard_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "shards")
	set := &features.FeatureSet{Dim: 1, Features: []float32{1}, Indices: []int64{0}}

	path, err := WriteShard(dir, 0, SplitQuery, "heads", "gob", set)
	if err != nil {
		t.Fatalf("WriteShard() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("shard file not written: %v", err)
	}
}
