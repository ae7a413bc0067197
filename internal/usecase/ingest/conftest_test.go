package ingest

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/gutlabs/catalograg/internal/domain"
	"github.com/gutlabs/catalograg/internal/domain/splitter"
)

type mockChunkRepo struct {
	upsertFunc func(ctx context.Context, collection string, records []domain.VectorRecord) error
	deleteFunc func(ctx context.Context, collection, source string) (int, error)

	upsertCalls [][]domain.VectorRecord
	stored      map[string]domain.VectorRecord
}

// UpsertBatch keeps records keyed by "{collection}/{id}", overwriting as
// the index would, so tests can observe what survives re-ingestion.
func (m *mockChunkRepo) UpsertBatch(ctx context.Context, collection string, records []domain.VectorRecord) error {
	m.upsertCalls = append(m.upsertCalls, records)
	if m.stored == nil {
		m.stored = make(map[string]domain.VectorRecord)
	}
	for _, rec := range records {
		m.stored[collection+"/"+rec.ID] = rec
	}
	if m.upsertFunc != nil {
		return m.upsertFunc(ctx, collection, records)
	}
	return nil
}

func (m *mockChunkRepo) DeleteBySource(ctx context.Context, collection, source string) (int, error) {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, collection, source)
	}
	deleted := 0
	for key, rec := range m.stored {
		if strings.HasPrefix(key, collection+"/") && rec.Fields["source"] == source {
			delete(m.stored, key)
			deleted++
		}
	}
	return deleted, nil
}

type mockEnsurer struct {
	textFunc  func(ctx context.Context, clientID string) (string, error)
	imageFunc func(ctx context.Context) (string, error)
}

func (m *mockEnsurer) EnsureText(ctx context.Context, clientID string) (string, error) {
	if m.textFunc != nil {
		return m.textFunc(ctx, clientID)
	}
	return domain.TextCollectionName(clientID), nil
}

func (m *mockEnsurer) EnsureImage(ctx context.Context) (string, error) {
	if m.imageFunc != nil {
		return m.imageFunc(ctx)
	}
	return domain.ImageCollection, nil
}

type mockBatchEmbedder struct {
	batchFunc  func(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
	batchCalls [][]string
}

func (m *mockBatchEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.batchCalls = append(m.batchCalls, texts)
	if m.batchFunc != nil {
		return m.batchFunc(ctx, texts)
	}
	embeddings := make([][]float32, len(texts))
	for i := range texts {
		embeddings[i] = []float32{float32(i), 1}
	}
	return domain.BatchEmbeddingResult{Embeddings: embeddings, TotalTokens: len(texts) * 10}, nil
}

type mockImageEmbedder struct {
	embedFunc func(ctx context.Context, image []byte) ([]float32, error)
}

func (m *mockImageEmbedder) EmbedImage(ctx context.Context, image []byte) ([]float32, error) {
	if m.embedFunc != nil {
		return m.embedFunc(ctx, image)
	}
	return []float32{0.5, 0.5}, nil
}

type mockDescriber struct {
	answer string
	err    error
	calls  int
}

func (m *mockDescriber) ExtractRaw(_ context.Context, _ []byte, _ string) (string, error) {
	m.calls++
	return m.answer, m.err
}

func newTestService(repo *mockChunkRepo, colls *mockEnsurer, emb *mockBatchEmbedder) *Service {
	return New(repo, colls, emb, splitter.New(50, 10), zap.NewNop())
}
