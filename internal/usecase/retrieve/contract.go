package retrieve

import (
	"context"

	"github.com/gutlabs/catalograg/internal/domain"
)

// SearchRepository runs KNN queries against vector collections.
type SearchRepository interface {
	Texts(ctx context.Context, collection string, vector []float32, k int) ([]domain.Hit, error)
	Images(ctx context.Context, vector []float32, k int) ([]domain.ImageHit, error)
}

// CollectionEnsurer lazily provisions a tenant's text collection.
type CollectionEnsurer interface {
	EnsureText(ctx context.Context, clientID string) (string, error)
}

// Embedder vectorizes a query string.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// TextEncoder projects a query into the image embedding space.
type TextEncoder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}
