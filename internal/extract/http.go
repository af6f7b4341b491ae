package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	stdimage "image"
	"image/png"
	"net/http"
	"time"

	"github.com/irbench/ir-bench/internal/pkg/errors"
)

// HTTPEmbedder delegates feature extraction to an external embedding
// service. Images are sent PNG-encoded in one request per batch.
type HTTPEmbedder struct {
	url    string
	dim    int
	client *http.Client
}

// NewHTTPEmbedder creates an embedder for the service at url producing
// dim-dimensional features.
func NewHTTPEmbedder(url string, dim int) *HTTPEmbedder {
	return &HTTPEmbedder{
		url: url,
		dim: dim,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// Dim is the feature dimension every Embed result has.
func (e *HTTPEmbedder) Dim() int {
	return e.dim
}

type embedRequest struct {
	Images []string `json:"images"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed returns one feature vector per input image.
func (e *HTTPEmbedder) Embed(ctx context.Context, batch []stdimage.Image) ([][]float32, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	req := embedRequest{Images: make([]string, len(batch))}
	for i, img := range batch {
		encoded, err := encodePNG(img)
		if err != nil {
			return nil, err
		}
		req.Images[i] = encoded
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, "failed to marshal embed request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, "failed to build embed request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(errors.CodeUnavailable, "embed service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(errors.CodeUnavailable,
			fmt.Sprintf("embed service returned status %d", resp.StatusCode))
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errors.Wrap(errors.CodeInternal, "failed to decode embed response", err)
	}

	if len(parsed.Embeddings) != len(batch) {
		return nil, errors.New(errors.CodeInternal, fmt.Sprintf(
			"embed service returned %d vectors for %d images", len(parsed.Embeddings), len(batch)))
	}
	for i, vec := range parsed.Embeddings {
		if len(vec) != e.dim {
			return nil, errors.New(errors.CodeInternal, fmt.Sprintf(
				"embedding %d has dim %d, want %d", i, len(vec), e.dim))
		}
	}

	return parsed.Embeddings, nil
}

func encodePNG(img stdimage.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", errors.Wrap(errors.CodeInternal, "failed to encode image", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
