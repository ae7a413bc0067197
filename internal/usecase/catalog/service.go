// Package catalog keeps the relational product store and the per-tenant
// vector collections in sync: every product row has a matching vector
// source "product_{id}", and deleting one side deletes the other.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/gutlabs/catalograg/internal/domain"
	"github.com/gutlabs/catalograg/internal/domain/batch"
)

// Service coordinates product writes across both stores.
type Service struct {
	store    Store
	ingestor Ingestor
	dropper  CollectionDropper
	registry RegistryInvalidator
	logger   *zap.Logger
}

func New(store Store, ingestor Ingestor, dropper CollectionDropper, registry RegistryInvalidator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		ingestor: ingestor,
		dropper:  dropper,
		registry: registry,
		logger:   logger,
	}
}

// UpsertResult reports one product upsert.
type UpsertResult struct {
	Product domain.Product `json:"product"`
	Created bool           `json:"created"`
	Chunks  int            `json:"chunks"`
}

// UpsertClient registers or renames a tenant. The store defaults an
// empty name to the ID on create and keeps the existing name on update,
// so only an explicit non-empty name renames the client.
func (s *Service) UpsertClient(ctx context.Context, id, name string) (domain.Client, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Client{}, fmt.Errorf("missing client id: %w", domain.ErrInvalidInput)
	}
	return s.store.UpsertClient(ctx, id, name)
}

// GetClient returns one tenant.
func (s *Service) GetClient(ctx context.Context, id string) (domain.Client, error) {
	return s.store.GetClient(ctx, id)
}

// ListClients returns every tenant.
func (s *Service) ListClients(ctx context.Context) ([]domain.Client, error) {
	return s.store.ListClients(ctx)
}

// DeleteClient removes a tenant, its products (cascade) and its vector
// collection. Collection cleanup failures are logged, not fatal: the
// row is already gone and the orphan collection is re-created empty on
// the tenant's next appearance.
func (s *Service) DeleteClient(ctx context.Context, id string) error {
	if err := s.store.DeleteClient(ctx, id); err != nil {
		return err
	}

	if s.dropper != nil {
		name := domain.TextCollectionName(id)
		if err := s.dropper.Drop(ctx, name); err != nil && !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("drop collection failed",
				zap.String("collection", name), zap.Error(err))
		}
	}
	if s.registry != nil {
		s.registry.Forget(id)
	}

	s.logger.Info("client deleted", zap.String("client_id", id))
	return nil
}

// UpsertProduct stores the record and re-embeds its content. The tenant
// row is created on the fly so a bulk import needs no separate client
// setup. Records without a product ID derive one from the source file.
func (s *Service) UpsertProduct(ctx context.Context, clientID string, rec domain.ProductRecord) (UpsertResult, error) {
	if strings.TrimSpace(clientID) == "" {
		return UpsertResult{}, fmt.Errorf("missing client id: %w", domain.ErrInvalidInput)
	}
	rec.ProductID = normalizeProductID(rec)
	if rec.ProductID == "" {
		return UpsertResult{}, fmt.Errorf("missing product id: %w", domain.ErrInvalidInput)
	}

	// No name: the implicit upsert must not rename an existing client.
	if _, err := s.store.UpsertClient(ctx, clientID, ""); err != nil {
		return UpsertResult{}, fmt.Errorf("upsert client: %w", err)
	}

	product, created, err := s.store.UpsertProduct(ctx, clientID, rec)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("upsert product: %w", err)
	}

	result := UpsertResult{Product: product, Created: created}
	if strings.TrimSpace(rec.Content) != "" {
		ingRes, err := s.ingestor.ReplaceSource(ctx, clientID, rec.Content, productSource(rec.ProductID))
		if err != nil {
			return UpsertResult{}, fmt.Errorf("index product %s: %w", rec.ProductID, err)
		}
		result.Chunks = ingRes.Chunks
	}

	s.logger.Info("product upserted",
		zap.String("client_id", clientID),
		zap.String("product_id", rec.ProductID),
		zap.Bool("created", created),
		zap.Int("chunks", result.Chunks),
	)
	return result, nil
}

// BulkUpsert upserts a batch of records, one result per record. A bad
// record fails its slot without aborting the rest.
func (s *Service) BulkUpsert(ctx context.Context, clientID string, recs []domain.ProductRecord) ([]batch.Result, batch.Summary) {
	results := make([]batch.Result, len(recs))
	for i, rec := range recs {
		id := normalizeProductID(rec)
		if _, err := s.UpsertProduct(ctx, clientID, rec); err != nil {
			results[i] = batch.NewError(id, err)
			continue
		}
		results[i] = batch.NewOK(id)
	}
	return results, batch.Summarize(results)
}

// GetProduct returns one product row.
func (s *Service) GetProduct(ctx context.Context, clientID, productID string) (domain.Product, error) {
	return s.store.GetProduct(ctx, clientID, productID)
}

// ListProducts pages a tenant's products, most recently updated first.
func (s *Service) ListProducts(ctx context.Context, clientID string, limit, offset int) ([]domain.Product, int, error) {
	products, err := s.store.ListProducts(ctx, clientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.CountProducts(ctx, clientID)
	if err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// DeleteProduct removes the row and its chunks.
func (s *Service) DeleteProduct(ctx context.Context, clientID, productID string) error {
	if err := s.store.DeleteProduct(ctx, clientID, productID); err != nil {
		return err
	}
	if _, err := s.ingestor.DeleteSource(ctx, clientID, productSource(productID)); err != nil {
		s.logger.Warn("delete product chunks failed",
			zap.String("product_id", productID), zap.Error(err))
	}
	return nil
}

// ResyncProduct rebuilds one product's vectors from its relational row,
// the reconciliation path when the two stores drift apart. Returns the
// number of chunks written.
func (s *Service) ResyncProduct(ctx context.Context, clientID, productID string) (int, error) {
	product, err := s.store.GetProduct(ctx, clientID, productID)
	if err != nil {
		return 0, err
	}

	source := productSource(productID)
	if strings.TrimSpace(product.Content) == "" {
		deleted, err := s.ingestor.DeleteSource(ctx, clientID, source)
		if err != nil {
			return 0, fmt.Errorf("clear chunks for %s: %w", productID, err)
		}
		if deleted > 0 {
			s.logger.Info("cleared chunks for empty product",
				zap.String("product_id", productID), zap.Int("deleted", deleted))
		}
		return 0, nil
	}

	res, err := s.ingestor.ReplaceSource(ctx, clientID, product.Content, source)
	if err != nil {
		return 0, fmt.Errorf("reindex product %s: %w", productID, err)
	}
	return res.Chunks, nil
}

// ResyncResult reports a full vector rebuild.
type ResyncResult struct {
	Products int `json:"products"`
	Indexed  int `json:"indexed"`
	Chunks   int `json:"chunks"`
}

// Resync rebuilds the tenant's vectors from the relational rows, the
// recovery path after a flushed or corrupted vector store. Products
// without content are counted but not indexed.
func (s *Service) Resync(ctx context.Context, clientID string) (ResyncResult, error) {
	products, err := s.store.ListAllProducts(ctx, clientID)
	if err != nil {
		return ResyncResult{}, fmt.Errorf("list products: %w", err)
	}

	res := ResyncResult{Products: len(products)}
	for _, p := range products {
		if strings.TrimSpace(p.Content) == "" {
			continue
		}
		ingRes, err := s.ingestor.ReplaceSource(ctx, clientID, p.Content, productSource(p.ProductID))
		if err != nil {
			return res, fmt.Errorf("reindex product %s: %w", p.ProductID, err)
		}
		res.Indexed++
		res.Chunks += ingRes.Chunks
	}

	s.logger.Info("resync completed",
		zap.String("client_id", clientID),
		zap.Int("products", res.Products),
		zap.Int("indexed", res.Indexed),
		zap.Int("chunks", res.Chunks),
	)
	return res, nil
}

// normalizeProductID falls back to the source file name when the record
// carries no explicit ID, matching how catalog pages are keyed.
func normalizeProductID(rec domain.ProductRecord) string {
	id := strings.TrimSpace(rec.ProductID)
	if id != "" {
		return id
	}
	src := strings.TrimSpace(rec.SourceFile)
	if src == "" {
		return ""
	}
	src = strings.TrimSuffix(src, ".html")
	return strings.ReplaceAll(src, ".", "_")
}

// productSource is the vector source tag for a product's chunks.
func productSource(productID string) string {
	return "product_" + productID
}
