package health

import "context"

// Pinger checks connectivity to a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker verifies the embedding provider responds.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}
