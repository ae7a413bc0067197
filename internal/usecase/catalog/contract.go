package catalog

import (
	"context"

	"github.com/gutlabs/catalograg/internal/domain"
	"github.com/gutlabs/catalograg/internal/usecase/ingest"
)

// Store is the relational side of the catalog: clients and products.
type Store interface {
	UpsertClient(ctx context.Context, id, name string) (domain.Client, error)
	GetClient(ctx context.Context, id string) (domain.Client, error)
	ListClients(ctx context.Context) ([]domain.Client, error)
	DeleteClient(ctx context.Context, id string) error

	UpsertProduct(ctx context.Context, clientID string, rec domain.ProductRecord) (domain.Product, bool, error)
	GetProduct(ctx context.Context, clientID, productID string) (domain.Product, error)
	ListProducts(ctx context.Context, clientID string, limit, offset int) ([]domain.Product, error)
	ListAllProducts(ctx context.Context, clientID string) ([]domain.Product, error)
	DeleteProduct(ctx context.Context, clientID, productID string) error
	CountProducts(ctx context.Context, clientID string) (int, error)
}

// Ingestor keeps the vector side in sync with the relational side.
type Ingestor interface {
	ReplaceSource(ctx context.Context, clientID, text, source string) (ingest.Result, error)
	DeleteSource(ctx context.Context, clientID, source string) (int, error)
}

// CollectionDropper removes a tenant's vector collection wholesale.
type CollectionDropper interface {
	Drop(ctx context.Context, name string) error
}

// RegistryInvalidator forgets cached tenant collections after a drop.
type RegistryInvalidator interface {
	Forget(clientID string)
}
