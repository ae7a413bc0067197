package chi

import (
	"context"
	"net/http/httptest"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/gutlabs/catalograg/internal/domain"
	"github.com/gutlabs/catalograg/internal/domain/splitter"
	answeruc "github.com/gutlabs/catalograg/internal/usecase/answer"
	cataloguc "github.com/gutlabs/catalograg/internal/usecase/catalog"
	healthuc "github.com/gutlabs/catalograg/internal/usecase/health"
	ingestuc "github.com/gutlabs/catalograg/internal/usecase/ingest"
	retrieveuc "github.com/gutlabs/catalograg/internal/usecase/retrieve"
)

// fakeBackend implements every storage and model contract the services
// need, so handler tests run over the real use case stack.
type fakeBackend struct {
	clients  map[string]domain.Client
	products map[string]domain.Product
	chunks   map[string][]domain.VectorRecord
	hits     []domain.Hit
	answer   string
	pingErr  error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		clients:  make(map[string]domain.Client),
		products: make(map[string]domain.Product),
		chunks:   make(map[string][]domain.VectorRecord),
		answer:   "réponse générée",
	}
}

// --- chunk repository ---

func (f *fakeBackend) UpsertBatch(_ context.Context, collection string, records []domain.VectorRecord) error {
	f.chunks[collection] = append(f.chunks[collection], records...)
	return nil
}

func (f *fakeBackend) DeleteBySource(_ context.Context, collection, source string) (int, error) {
	kept := f.chunks[collection][:0]
	deleted := 0
	for _, rec := range f.chunks[collection] {
		if rec.Fields["source"] == source {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	f.chunks[collection] = kept
	return deleted, nil
}

// --- collection ensurer / dropper ---

func (f *fakeBackend) EnsureText(_ context.Context, clientID string) (string, error) {
	return domain.TextCollectionName(clientID), nil
}

func (f *fakeBackend) EnsureImage(context.Context) (string, error) {
	return domain.ImageCollection, nil
}

func (f *fakeBackend) Drop(context.Context, string) error { return nil }

// --- embedders / models ---

func (f *fakeBackend) Embed(context.Context, string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{Embedding: []float32{1, 0}}, nil
}

func (f *fakeBackend) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	embeddings := make([][]float32, len(texts))
	for i := range texts {
		embeddings[i] = []float32{1, 0}
	}
	return domain.BatchEmbeddingResult{Embeddings: embeddings, TotalTokens: len(texts)}, nil
}

func (f *fakeBackend) Complete(context.Context, string, string) (string, error) {
	return f.answer, nil
}

// --- search repository ---

// Texts returns canned hits when set, otherwise the chunks stored in the
// named collection, so ingest-then-query tests see only their tenant's
// data.
func (f *fakeBackend) Texts(_ context.Context, collection string, _ []float32, k int) ([]domain.Hit, error) {
	if f.hits != nil {
		return f.hits, nil
	}
	hits := make([]domain.Hit, 0, len(f.chunks[collection]))
	for _, rec := range f.chunks[collection] {
		hits = append(hits, domain.Hit{
			Text:   rec.Fields["text"],
			Source: rec.Fields["source"],
			Score:  0.9,
		})
	}
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (f *fakeBackend) Images(context.Context, []float32, int) ([]domain.ImageHit, error) {
	return nil, nil
}

// --- relational store ---

// UpsertClient mirrors the store's name semantics: an empty name never
// overwrites an existing one.
func (f *fakeBackend) UpsertClient(_ context.Context, id, name string) (domain.Client, error) {
	c, ok := f.clients[id]
	if !ok {
		c = domain.Client{ID: id, Name: id}
	}
	if name != "" {
		c.Name = name
	}
	f.clients[id] = c
	return c, nil
}

func (f *fakeBackend) GetClient(_ context.Context, id string) (domain.Client, error) {
	if c, ok := f.clients[id]; ok {
		return c, nil
	}
	return domain.Client{}, domain.ErrNotFound
}

func (f *fakeBackend) ListClients(context.Context) ([]domain.Client, error) {
	out := make([]domain.Client, 0, len(f.clients))
	for _, c := range f.clients {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeBackend) DeleteClient(_ context.Context, id string) error {
	delete(f.clients, id)
	return nil
}

func (f *fakeBackend) UpsertProduct(_ context.Context, clientID string, rec domain.ProductRecord) (domain.Product, bool, error) {
	key := clientID + "/" + rec.ProductID
	_, existed := f.products[key]
	p := domain.Product{
		ProductID:  rec.ProductID,
		ClientID:   clientID,
		SourceFile: rec.SourceFile,
		Content:    rec.Content,
		Metadata:   rec.Metadata,
	}
	f.products[key] = p
	return p, !existed, nil
}

func (f *fakeBackend) GetProduct(_ context.Context, clientID, productID string) (domain.Product, error) {
	p, ok := f.products[clientID+"/"+productID]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return p, nil
}

func (f *fakeBackend) ListProducts(_ context.Context, clientID string, _, _ int) ([]domain.Product, error) {
	var out []domain.Product
	for _, p := range f.products {
		if p.ClientID == clientID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeBackend) ListAllProducts(ctx context.Context, clientID string) ([]domain.Product, error) {
	return f.ListProducts(ctx, clientID, 0, 0)
}

func (f *fakeBackend) DeleteProduct(_ context.Context, clientID, productID string) error {
	key := clientID + "/" + productID
	if _, ok := f.products[key]; !ok {
		return domain.ErrProductNotFound
	}
	delete(f.products, key)
	return nil
}

func (f *fakeBackend) CountProducts(ctx context.Context, clientID string) (int, error) {
	ps, _ := f.ListProducts(ctx, clientID, 0, 0)
	return len(ps), nil
}

// --- health pingers ---

func (f *fakeBackend) Ping(context.Context) error { return f.pingErr }

var _ ingestuc.ChunkRepository = (*fakeBackend)(nil)
var _ cataloguc.Store = (*fakeBackend)(nil)

// newTestServer wires the full stack over one fake backend and returns
// an httptest server with all routes mounted.
func newTestServer(f *fakeBackend) *httptest.Server {
	nop := zap.NewNop()

	ingestSvc := ingestuc.New(f, f, f, splitter.New(50, 10), nop)
	registry := retrieveuc.NewRegistry(f)
	retrieveSvc := retrieveuc.New(f, registry, f, nop)
	answerSvc := answeruc.New(retrieveSvc, f, nop)
	catalogSvc := cataloguc.New(f, ingestSvc, f, registry, nop)
	healthSvc := healthuc.New(f, f, nil)

	srv := NewServer(ingestSvc, retrieveSvc, answerSvc, catalogSvc, healthSvc, nop)

	r := chi.NewRouter()
	srv.Routes(r)
	return httptest.NewServer(r)
}
