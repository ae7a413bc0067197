package domain

import "errors"

var (
	// ErrNotFound signals a missing resource (client, collection).
	ErrNotFound = errors.New("not found")
	// ErrProductNotFound signals a missing product.
	ErrProductNotFound = errors.New("product not found")
	// ErrInvalidInput signals unusable caller input (unsupported file format, bad request shape).
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotInitialized signals a core dependency that is not ready.
	ErrNotInitialized = errors.New("not initialized")
	// ErrEmbeddingUnavailable signals an embedding provider failure.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")
	// ErrModelUnavailable signals a language/vision model failure.
	ErrModelUnavailable = errors.New("model unavailable")
)
