package chunk

import (
	"context"
	"errors"
	"testing"

	"github.com/gutlabs/catalograg/internal/db"
	"github.com/gutlabs/catalograg/internal/domain"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	hsetMultiFn  func(ctx context.Context, items []db.HashSetItem) error
	searchKeysFn func(ctx context.Context, index, query string, limit int) ([]string, error)
	delMultiFn   func(ctx context.Context, keys []string) error
}

func (m *mockStore) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	if m.hsetMultiFn != nil {
		return m.hsetMultiFn(ctx, items)
	}
	return nil
}

func (m *mockStore) SearchKeys(ctx context.Context, index, query string, limit int) ([]string, error) {
	if m.searchKeysFn != nil {
		return m.searchKeysFn(ctx, index, query, limit)
	}
	return nil, nil
}

func (m *mockStore) DelMulti(ctx context.Context, keys []string) error {
	if m.delMultiFn != nil {
		return m.delMultiFn(ctx, keys)
	}
	return nil
}

func TestUpsertBatch_KeysAndFields(t *testing.T) {
	ms := &mockStore{}
	repo := New(ms)

	var got []db.HashSetItem
	ms.hsetMultiFn = func(_ context.Context, items []db.HashSetItem) error {
		got = items
		return nil
	}

	records := []domain.VectorRecord{
		{
			ID:     "manual_pdf_0",
			Vector: []float32{1, 2},
			Fields: map[string]string{"text": "first chunk", "source": "manual_pdf"},
		},
		{
			ID:     "manual_pdf_1",
			Vector: []float32{3, 4},
			Fields: map[string]string{"text": "second chunk", "source": "manual_pdf"},
		},
	}
	if err := repo.UpsertBatch(context.Background(), "text_embeddings_acme", records); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got))
	}
	if got[0].Key != "rag:text_embeddings_acme:manual_pdf_0" {
		t.Errorf("unexpected key %q", got[0].Key)
	}
	if got[0].Fields["text"] != "first chunk" || got[0].Fields["source"] != "manual_pdf" {
		t.Errorf("unexpected fields: %v", got[0].Fields)
	}
	// 2 float32s = 8 bytes.
	if len(got[0].Fields["vector"]) != 8 {
		t.Errorf("vector blob length = %d, want 8", len(got[0].Fields["vector"]))
	}
}

func TestUpsertBatch_Empty(t *testing.T) {
	ms := &mockStore{
		hsetMultiFn: func(_ context.Context, _ []db.HashSetItem) error {
			t.Fatal("HSetMulti should not be called")
			return nil
		},
	}
	repo := New(ms)
	if err := repo.UpsertBatch(context.Background(), "c", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUpsertBatch_EmptyID(t *testing.T) {
	repo := New(&mockStore{})
	err := repo.UpsertBatch(context.Background(), "c", []domain.VectorRecord{{ID: ""}})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDeleteBySource_EscapesTag(t *testing.T) {
	ms := &mockStore{}
	repo := New(ms)

	var gotQuery, gotIndex string
	var deleted []string
	ms.searchKeysFn = func(_ context.Context, index, query string, _ int) ([]string, error) {
		gotIndex = index
		gotQuery = query
		return []string{"rag:text_embeddings_acme:catalogue_html_0"}, nil
	}
	ms.delMultiFn = func(_ context.Context, keys []string) error {
		deleted = keys
		return nil
	}

	n, err := repo.DeleteBySource(context.Background(), "text_embeddings_acme", "catalogue.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 deleted, got %d", n)
	}
	if gotIndex != "rag:text_embeddings_acme:idx" {
		t.Errorf("unexpected index %q", gotIndex)
	}
	if gotQuery != `@source:{catalogue\.html}` {
		t.Errorf("unexpected query %q", gotQuery)
	}
	if len(deleted) != 1 {
		t.Errorf("expected 1 key deleted, got %v", deleted)
	}
}

func TestDeleteBySource_UnknownIndexIsNoop(t *testing.T) {
	ms := &mockStore{
		searchKeysFn: func(_ context.Context, _, _ string, _ int) ([]string, error) {
			return nil, db.ErrIndexNotFound
		},
	}
	repo := New(ms)

	n, err := repo.DeleteBySource(context.Background(), "text_embeddings_ghost", "doc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 deleted, got %d", n)
	}
}

func TestDeleteBySource_NoMatches(t *testing.T) {
	ms := &mockStore{
		delMultiFn: func(_ context.Context, _ []string) error {
			t.Fatal("DelMulti should not be called")
			return nil
		},
	}
	repo := New(ms)

	n, err := repo.DeleteBySource(context.Background(), "text_embeddings_acme", "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 deleted, got %d", n)
	}
}
