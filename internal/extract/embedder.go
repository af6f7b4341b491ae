// Package extract produces feature vectors for dataset images and
// writes them as per-node shards.
package extract

import (
	"context"
	"fmt"
	stdimage "image"
	"math"

	xdraw "golang.org/x/image/draw"

	"github.com/irbench/ir-bench/internal/config"
	"github.com/irbench/ir-bench/internal/image"
	"github.com/irbench/ir-bench/internal/pkg/errors"
)

// Embedder turns batches of prepared images into feature vectors.
type Embedder interface {
	// Dim is the feature dimension every Embed result has.
	Dim() int

	// Embed returns one feature vector per input image.
	Embed(ctx context.Context, batch []stdimage.Image) ([][]float32, error)
}

// NewEmbedder builds the embedder named by the extraction configuration.
// The default "tiny" embedder needs no external service.
func NewEmbedder(cfg config.ExtractConfig) (Embedder, error) {
	switch cfg.Embedder {
	case "", "tiny":
		return NewTinyImageEmbedder(0), nil
	case "http":
		if cfg.URL == "" {
			return nil, errors.ValidationError("http embedder needs a url")
		}
		if cfg.Dim < 1 {
			return nil, errors.ValidationError("http embedder needs a feature dimension")
		}
		return NewHTTPEmbedder(cfg.URL, cfg.Dim), nil
	default:
		return nil, errors.ValidationError(fmt.Sprintf("unknown embedder: %s", cfg.Embedder))
	}
}

// TinyImageEmbedder is a deterministic pixel embedder. It scales every
// image to a small square, flattens the RGB channels and L2-normalizes
// the result. It stands in for a real model in smoke runs and tests.
type TinyImageEmbedder struct {
	side int
}

// NewTinyImageEmbedder creates a pixel embedder with the given square
// side. A side of 8 yields 192-dimensional features.
func NewTinyImageEmbedder(side int) *TinyImageEmbedder {
	if side <= 0 {
		side = 8
	}
	return &TinyImageEmbedder{side: side}
}

// Dim is the feature dimension every Embed result has.
func (e *TinyImageEmbedder) Dim() int {
	return e.side * e.side * 3
}

// Embed returns one feature vector per input image.
func (e *TinyImageEmbedder) Embed(ctx context.Context, batch []stdimage.Image) ([][]float32, error) {
	out := make([][]float32, len(batch))
	for i, img := range batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if img == nil {
			return nil, errors.ValidationError("cannot embed a nil image")
		}
		out[i] = e.embedOne(img)
	}
	return out, nil
}

func (e *TinyImageEmbedder) embedOne(img stdimage.Image) []float32 {
	// Square resize on purpose, aspect ratio does not matter at this scale.
	square := stdimage.NewRGBA(stdimage.Rect(0, 0, e.side, e.side))
	xdraw.BiLinear.Scale(square, square.Bounds(), img, img.Bounds(), xdraw.Over, nil)

	tensor := image.ToTensor(square)
	vec := make([]float32, len(tensor.Data))
	copy(vec, tensor.Data)
	l2Normalize(vec)
	return vec
}

// l2Normalize scales the vector to unit length in place. Zero vectors
// are left untouched.
func l2Normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}
