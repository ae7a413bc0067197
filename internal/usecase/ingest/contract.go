package ingest

import (
	"context"

	"github.com/gutlabs/catalograg/internal/domain"
)

// ChunkRepository stores embedded chunks in a tenant's collection.
type ChunkRepository interface {
	UpsertBatch(ctx context.Context, collection string, records []domain.VectorRecord) error
	DeleteBySource(ctx context.Context, collection, source string) (int, error)
}

// CollectionEnsurer lazily provisions vector collections.
type CollectionEnsurer interface {
	EnsureText(ctx context.Context, clientID string) (string, error)
	EnsureImage(ctx context.Context) (string, error)
}

// BatchEmbedder vectorizes chunk batches in one call.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}

// ImageEmbedder vectorizes images into the shared image space.
type ImageEmbedder interface {
	EmbedImage(ctx context.Context, image []byte) ([]float32, error)
}

// Describer produces a textual description of an image.
type Describer interface {
	ExtractRaw(ctx context.Context, image []byte, instruction string) (string, error)
}

// Splitter cuts a document into overlapping chunks.
type Splitter interface {
	Split(text string) []string
}
