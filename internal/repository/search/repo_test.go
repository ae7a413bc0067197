package search

import (
	"context"
	"math"
	"testing"

	"github.com/gutlabs/catalograg/internal/db"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	searchKNNFn func(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

func (m *mockStore) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if m.searchKNNFn != nil {
		return m.searchKNNFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func TestTexts_ConvertsDistanceToSimilarity(t *testing.T) {
	ms := &mockStore{
		searchKNNFn: func(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
			if q.IndexName != "rag:text_embeddings_acme:idx" {
				t.Errorf("unexpected index %q", q.IndexName)
			}
			if q.K != 3 {
				t.Errorf("expected k=3, got %d", q.K)
			}
			return &db.SearchResult{
				Total: 2,
				Entries: []db.SearchEntry{
					{Key: "a", Score: 0.1, Fields: map[string]string{"text": "close", "source": "s1"}},
					{Key: "b", Score: 0.8, Fields: map[string]string{"text": "far", "source": "s2"}},
				},
			}, nil
		},
	}
	repo := New(ms)

	hits, err := repo.Texts(context.Background(), "text_embeddings_acme", []float32{0.1}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if math.Abs(hits[0].Score-0.9) > 1e-9 {
		t.Errorf("expected score 0.9, got %f", hits[0].Score)
	}
	if hits[0].Text != "close" || hits[0].Source != "s1" {
		t.Errorf("unexpected hit: %+v", hits[0])
	}
	if math.Abs(hits[1].Score-0.2) > 1e-9 {
		t.Errorf("expected score 0.2, got %f", hits[1].Score)
	}
}

func TestTexts_UnknownIndexYieldsEmpty(t *testing.T) {
	ms := &mockStore{
		searchKNNFn: func(_ context.Context, _ *db.KNNQuery) (*db.SearchResult, error) {
			return nil, db.ErrIndexNotFound
		},
	}
	repo := New(ms)

	hits, err := repo.Texts(context.Background(), "text_embeddings_ghost", []float32{0.1}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits, got %d", len(hits))
	}
}

func TestImages_UsesSharedCollection(t *testing.T) {
	ms := &mockStore{
		searchKNNFn: func(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
			if q.IndexName != "rag:image_embeddings:idx" {
				t.Errorf("unexpected index %q", q.IndexName)
			}
			return &db.SearchResult{
				Total: 1,
				Entries: []db.SearchEntry{
					{Key: "i", Score: 0.25, Fields: map[string]string{
						"image_path":  "images/p1.jpg",
						"description": "red drill",
					}},
				},
			}, nil
		},
	}
	repo := New(ms)

	hits, err := repo.Images(context.Background(), []float32{0.1}, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].ImagePath != "images/p1.jpg" || hits[0].Description != "red drill" {
		t.Errorf("unexpected hit: %+v", hits[0])
	}
	if math.Abs(hits[0].Score-0.75) > 1e-9 {
		t.Errorf("expected score 0.75, got %f", hits[0].Score)
	}
}
