// Package clip talks to the CLIP sidecar that embeds images and text
// queries into a shared vector space.
package clip

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/gutlabs/catalograg/internal/domain"
)

// Embedder implements domain.ImageEmbedder over the sidecar HTTP API.
type Embedder struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// Config holds sidecar connection settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *zap.Logger
}

// New creates a CLIP sidecar client.
func New(cfg *Config) *Embedder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Embedder{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  cfg.Logger,
	}
}

type embedImageRequest struct {
	ImageBase64 string `json:"image_base64"`
}

type embedTextRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// EmbedImage returns a unit-length vector for the image bytes.
func (e *Embedder) EmbedImage(ctx context.Context, image []byte) ([]float32, error) {
	req := embedImageRequest{ImageBase64: base64.StdEncoding.EncodeToString(image)}
	return e.post(ctx, "/embed_image", req)
}

// EmbedText returns a unit-length vector for a text query in the image
// embedding space.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return e.post(ctx, "/embed_text", embedTextRequest{Text: text})
}

func (e *Embedder) post(ctx context.Context, path string, payload any) ([]float32, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("clip sidecar %s: %v: %w", path, err, domain.ErrEmbeddingUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("clip sidecar %s: status %d: %s: %w",
			path, resp.StatusCode, string(raw), domain.ErrEmbeddingUnavailable)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("empty clip embedding: %w", domain.ErrEmbeddingUnavailable)
	}

	return normalize(out.Embedding), nil
}

// normalize scales the vector to unit length so cosine similarity is a
// plain dot product. Zero vectors pass through unchanged.
func normalize(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(float64(f) / norm)
	}
	return out
}
