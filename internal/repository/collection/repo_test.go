package collection

import (
	"context"
	"errors"
	"testing"

	"github.com/gutlabs/catalograg/internal/db"
	"github.com/gutlabs/catalograg/internal/domain"
)

func TestEnsureText_CreatesIndexWhenMissing(t *testing.T) {
	repo, ms := newTestRepo(t)

	var created *db.IndexDefinition
	var metaKey string
	ms.indexExistsFn = func(_ context.Context, _ string) (bool, error) { return false, nil }
	ms.hsetFn = func(_ context.Context, key string, _ map[string]string) error {
		metaKey = key
		return nil
	}
	ms.createIndexFn = func(_ context.Context, def *db.IndexDefinition) error {
		created = def
		return nil
	}

	name, err := repo.EnsureText(context.Background(), "acme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "text_embeddings_acme" {
		t.Errorf("unexpected collection name %q", name)
	}
	if metaKey != "rag:collection:text_embeddings_acme" {
		t.Errorf("unexpected meta key %q", metaKey)
	}
	if created == nil {
		t.Fatal("expected FT.CREATE")
	}
	if created.Name != "rag:text_embeddings_acme:idx" {
		t.Errorf("unexpected index name %q", created.Name)
	}

	var vec *db.IndexField
	for i := range created.Fields {
		if created.Fields[i].Type == db.IndexFieldVector {
			vec = &created.Fields[i]
		}
	}
	if vec == nil {
		t.Fatal("expected vector field in schema")
	}
	if vec.VectorDim != testTextDim {
		t.Errorf("vector dim = %d, want %d", vec.VectorDim, testTextDim)
	}
	if vec.VectorDistance != db.DistanceCosine {
		t.Errorf("distance = %s, want COSINE", vec.VectorDistance)
	}
}

func TestEnsureText_SkipsWhenIndexExists(t *testing.T) {
	repo, ms := newTestRepo(t)

	ms.indexExistsFn = func(_ context.Context, _ string) (bool, error) { return true, nil }
	ms.createIndexFn = func(_ context.Context, _ *db.IndexDefinition) error {
		t.Fatal("FT.CREATE should not be called")
		return nil
	}

	if _, err := repo.EnsureText(context.Background(), "acme"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnsureText_InvalidClientID(t *testing.T) {
	repo, _ := newTestRepo(t)

	_, err := repo.EnsureText(context.Background(), "bad client!")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestEnsureText_ConcurrentCreateRace(t *testing.T) {
	repo, ms := newTestRepo(t)

	ms.indexExistsFn = func(_ context.Context, _ string) (bool, error) { return false, nil }
	ms.createIndexFn = func(_ context.Context, _ *db.IndexDefinition) error {
		return db.ErrIndexExists
	}

	if _, err := repo.EnsureText(context.Background(), "acme"); err != nil {
		t.Fatalf("race with concurrent ensure should not error: %v", err)
	}
}

func TestEnsureText_CreateFailureRollsBackMeta(t *testing.T) {
	repo, ms := newTestRepo(t)

	deleted := ""
	ms.indexExistsFn = func(_ context.Context, _ string) (bool, error) { return false, nil }
	ms.createIndexFn = func(_ context.Context, _ *db.IndexDefinition) error {
		return errors.New("boom")
	}
	ms.delFn = func(_ context.Context, key string) error {
		deleted = key
		return nil
	}

	if _, err := repo.EnsureText(context.Background(), "acme"); err == nil {
		t.Fatal("expected error")
	}
	if deleted != "rag:collection:text_embeddings_acme" {
		t.Errorf("expected meta rollback, deleted %q", deleted)
	}
}

func TestEnsureImage_UsesSharedCollection(t *testing.T) {
	repo, ms := newTestRepo(t)

	var created *db.IndexDefinition
	ms.indexExistsFn = func(_ context.Context, _ string) (bool, error) { return false, nil }
	ms.createIndexFn = func(_ context.Context, def *db.IndexDefinition) error {
		created = def
		return nil
	}

	name, err := repo.EnsureImage(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != domain.ImageCollection {
		t.Errorf("unexpected name %q", name)
	}
	for i := range created.Fields {
		if created.Fields[i].Type == db.IndexFieldVector && created.Fields[i].VectorDim != testImageDim {
			t.Errorf("image vector dim = %d, want %d", created.Fields[i].VectorDim, testImageDim)
		}
	}
}

func TestList_ReturnsCounts(t *testing.T) {
	repo, ms := newTestRepo(t)

	ms.scanFn = func(_ context.Context, pattern string) ([]string, error) {
		if pattern != "rag:collection:*" {
			t.Errorf("unexpected scan pattern %q", pattern)
		}
		return []string{
			"rag:collection:text_embeddings_acme",
			"rag:collection:image_embeddings",
		}, nil
	}
	ms.hgetAllFn = func(_ context.Context, key string) (map[string]string, error) {
		switch key {
		case "rag:collection:text_embeddings_acme":
			return map[string]string{"name": "text_embeddings_acme", "vector_dim": "1536"}, nil
		default:
			return map[string]string{"name": "image_embeddings", "vector_dim": "512"}, nil
		}
	}
	ms.searchCountFn = func(_ context.Context, index, _ string) (int, error) {
		if index == "rag:text_embeddings_acme:idx" {
			return 12, nil
		}
		return 3, nil
	}

	infos, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 collections, got %d", len(infos))
	}
	// Sorted by name: image_embeddings first.
	if infos[0].Name != "image_embeddings" || infos[0].Count != 3 {
		t.Errorf("unexpected first info: %+v", infos[0])
	}
	if infos[0].Modality != "image" || infos[0].Dim != 512 {
		t.Errorf("unexpected image modality/dim: %+v", infos[0])
	}
	if infos[1].Name != "text_embeddings_acme" || infos[1].Count != 12 {
		t.Errorf("unexpected second info: %+v", infos[1])
	}
	if infos[1].Modality != "text" || infos[1].Dim != 1536 {
		t.Errorf("unexpected text modality/dim: %+v", infos[1])
	}
}

func TestDrop_RemovesDocumentsIndexAndMeta(t *testing.T) {
	repo, ms := newTestRepo(t)

	var deleted []string
	droppedIdx := ""
	ms.existsFn = func(_ context.Context, _ string) (bool, error) { return true, nil }
	ms.indexExistsFn = func(_ context.Context, _ string) (bool, error) { return true, nil }
	ms.searchKeysFn = func(_ context.Context, _, _ string, _ int) ([]string, error) {
		return []string{"rag:text_embeddings_acme:a_0", "rag:text_embeddings_acme:a_1"}, nil
	}
	ms.delFn = func(_ context.Context, key string) error {
		deleted = append(deleted, key)
		return nil
	}
	ms.dropIndexFn = func(_ context.Context, name string) error {
		droppedIdx = name
		return nil
	}

	if err := repo.Drop(context.Background(), "text_embeddings_acme"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if droppedIdx != "rag:text_embeddings_acme:idx" {
		t.Errorf("unexpected dropped index %q", droppedIdx)
	}
	// 2 documents + 1 metadata key.
	if len(deleted) != 3 {
		t.Errorf("expected 3 deletes, got %d: %v", len(deleted), deleted)
	}
}

func TestDrop_NotFound(t *testing.T) {
	repo, ms := newTestRepo(t)

	ms.existsFn = func(_ context.Context, _ string) (bool, error) { return false, nil }
	ms.indexExistsFn = func(_ context.Context, _ string) (bool, error) { return false, nil }

	err := repo.Drop(context.Background(), "text_embeddings_ghost")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCount_UnknownIndex(t *testing.T) {
	repo, ms := newTestRepo(t)

	ms.searchCountFn = func(_ context.Context, _, _ string) (int, error) {
		return 0, db.ErrIndexNotFound
	}

	_, err := repo.Count(context.Background(), "text_embeddings_ghost")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
