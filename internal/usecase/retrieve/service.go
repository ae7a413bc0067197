// Package retrieve answers "which chunks are closest to this query"
// across per-tenant text collections and the shared image collection.
package retrieve

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/gutlabs/catalograg/internal/domain"
)

// DefaultTopK bounds searches that do not specify a result count.
const DefaultTopK = 5

// MaxTopK caps a caller-provided result count.
const MaxTopK = 50

// Service runs similarity searches for one tenant at a time.
type Service struct {
	repo     SearchRepository
	registry *Registry
	embedder Embedder
	encoder  TextEncoder
	logger   *zap.Logger
}

// New creates a retrieval service. encoder may be nil when image search
// is not configured.
func New(repo SearchRepository, registry *Registry, embedder Embedder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		registry: registry,
		embedder: embedder,
		logger:   logger,
	}
}

// WithImageSearch enables querying the shared image collection.
func (s *Service) WithImageSearch(encoder TextEncoder) *Service {
	s.encoder = encoder
	return s
}

// Search embeds the query and returns the k nearest chunks from the
// client's collection, most similar first. An empty or missing
// collection yields an empty slice, never an error.
func (s *Service) Search(ctx context.Context, clientID, query string, k int) ([]domain.Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty query: %w", domain.ErrInvalidInput)
	}
	k = clampK(k)

	collection, err := s.registry.Collection(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("resolve collection: %w", err)
	}

	result, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := s.repo.Texts(ctx, collection, result.Embedding, k)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}

	s.logger.Debug("search completed",
		zap.String("collection", collection),
		zap.Int("k", k),
		zap.Int("hits", len(hits)),
	)
	return hits, nil
}

// Context searches and joins the hit texts into a single block suitable
// for prompting, best match first.
func (s *Service) Context(ctx context.Context, clientID, query string, k int) (string, []domain.Hit, error) {
	hits, err := s.Search(ctx, clientID, query, k)
	if err != nil {
		return "", nil, err
	}
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
	}
	return strings.Join(texts, "\n\n"), hits, nil
}

// SearchImages projects the query into the image space and returns the
// k nearest images from the shared collection.
func (s *Service) SearchImages(ctx context.Context, query string, k int) ([]domain.ImageHit, error) {
	if s.encoder == nil {
		return nil, fmt.Errorf("image search disabled: %w", domain.ErrNotInitialized)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty query: %w", domain.ErrInvalidInput)
	}
	k = clampK(k)

	vector, err := s.encoder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	hits, err := s.repo.Images(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("search images: %w", err)
	}
	return hits, nil
}

func clampK(k int) int {
	switch {
	case k <= 0:
		return DefaultTopK
	case k > MaxTopK:
		return MaxTopK
	default:
		return k
	}
}
