// Package collection manages vector collection lifecycle: the per-client
// text collections and the shared image collection.
package collection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/gutlabs/catalograg/internal/db"
	"github.com/gutlabs/catalograg/internal/domain"
)

// store is the consumer interface for collections (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	SearchKeys(ctx context.Context, index, query string, limit int) ([]string, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// HNSWConfig HNSW index parameters.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Repo implements collection lifecycle against the vector store.
type Repo struct {
	store     store
	textDim   int
	imageDim  int
	hnsw      HNSWConfig
	deleteCap int
}

// New creates a collection repository. textDim and imageDim are the
// embedding dimensions of the text and image models.
func New(s store, textDim, imageDim int) *Repo {
	return &Repo{
		store:     s,
		textDim:   textDim,
		imageDim:  imageDim,
		hnsw:      HNSWConfig{M: 16, EFConstruct: 200},
		deleteCap: 10000,
	}
}

// WithHNSW configures HNSW index parameters.
func (r *Repo) WithHNSW(cfg HNSWConfig) *Repo {
	if cfg.M > 0 {
		r.hnsw.M = cfg.M
	}
	if cfg.EFConstruct > 0 {
		r.hnsw.EFConstruct = cfg.EFConstruct
	}
	return r
}

// EnsureText makes sure the client's text collection and index exist and
// returns the collection name. Safe to call on every request.
func (r *Repo) EnsureText(ctx context.Context, clientID string) (string, error) {
	name := domain.TextCollectionName(clientID)
	if !db.IsValidIdentifier(name) {
		return "", fmt.Errorf("collection name %q: %w", name, domain.ErrInvalidInput)
	}
	if err := r.ensure(ctx, name, r.textDim); err != nil {
		return "", err
	}
	return name, nil
}

// EnsureImage makes sure the shared image collection exists.
func (r *Repo) EnsureImage(ctx context.Context) (string, error) {
	name := domain.ImageCollection
	if err := r.ensure(ctx, name, r.imageDim); err != nil {
		return "", err
	}
	return name, nil
}

func (r *Repo) ensure(ctx context.Context, name string, dim int) error {
	idxExists, err := r.store.IndexExists(ctx, indexName(name))
	if err != nil {
		return fmt.Errorf("check index exists: %w", err)
	}
	if idxExists {
		return nil
	}

	meta := map[string]string{
		"name":       name,
		"vector_dim": strconv.Itoa(dim),
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}
	if err := r.store.HSet(ctx, metaKey(name), meta); err != nil {
		return fmt.Errorf("hset collection %s: %w", name, err)
	}

	def := buildIndex(name, dim, r.hnsw)
	if err := r.store.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			// Concurrent ensure won the race.
			return nil
		}
		cleanupErr := r.store.Del(ctx, metaKey(name))
		return errors.Join(err, cleanupErr)
	}
	return nil
}

// List returns all known collections with their document counts, sorted by name.
func (r *Repo) List(ctx context.Context) ([]domain.CollectionInfo, error) {
	keys, err := r.store.Scan(ctx, metaKey("*"))
	if err != nil {
		return nil, fmt.Errorf("scan collections: %w", err)
	}

	infos := make([]domain.CollectionInfo, 0, len(keys))
	for _, key := range keys {
		m, err := r.store.HGetAll(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("hgetall %s: %w", key, err)
		}
		name := m["name"]
		if name == "" {
			continue
		}

		count, err := r.store.SearchCount(ctx, indexName(name), "*")
		if err != nil && !errors.Is(err, db.ErrIndexNotFound) {
			return nil, fmt.Errorf("count %s: %w", name, err)
		}
		dim, _ := strconv.Atoi(m["vector_dim"])
		infos = append(infos, domain.CollectionInfo{
			Name:     name,
			Modality: domain.Modality(name),
			Dim:      dim,
			Count:    int64(count),
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Drop removes a collection: its documents, index and metadata.
func (r *Repo) Drop(ctx context.Context, name string) error {
	exists, err := r.store.Exists(ctx, metaKey(name))
	if err != nil {
		return fmt.Errorf("check exists %s: %w", name, err)
	}
	idxExists, err := r.store.IndexExists(ctx, indexName(name))
	if err != nil {
		return fmt.Errorf("check index exists: %w", err)
	}
	if !exists && !idxExists {
		return domain.ErrNotFound
	}

	if idxExists {
		keys, err := r.store.SearchKeys(ctx, indexName(name), "*", r.deleteCap)
		if err != nil && !errors.Is(err, db.ErrIndexNotFound) {
			return fmt.Errorf("list documents %s: %w", name, err)
		}
		for _, key := range keys {
			if err := r.store.Del(ctx, key); err != nil {
				return fmt.Errorf("del %s: %w", key, err)
			}
		}
		if err := r.store.DropIndex(ctx, indexName(name)); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
			return fmt.Errorf("drop index %s: %w", name, err)
		}
	}

	if err := r.store.Del(ctx, metaKey(name)); err != nil {
		return fmt.Errorf("del collection %s: %w", name, err)
	}
	return nil
}

// Count returns the number of documents in a collection.
func (r *Repo) Count(ctx context.Context, name string) (int64, error) {
	n, err := r.store.SearchCount(ctx, indexName(name), "*")
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("count %s: %w", name, err)
	}
	return int64(n), nil
}

// Redis key patterns: rag:collection:{name}, rag:{name}:idx, rag:{name}:{id}

func metaKey(name string) string {
	return fmt.Sprintf("%scollection:%s", domain.KeyPrefix, name)
}

func indexName(name string) string {
	return fmt.Sprintf("%s%s:idx", domain.KeyPrefix, name)
}

func collectionPrefix(name string) string {
	return fmt.Sprintf("%s%s:", domain.KeyPrefix, name)
}

// buildIndex defines the chunk schema: a source TAG for delete-by-source
// plus the embedding vector.
func buildIndex(name string, dim int, hnsw HNSWConfig) *db.IndexDefinition {
	return &db.IndexDefinition{
		Name:     indexName(name),
		Prefixes: []string{collectionPrefix(name)},
		Fields: []db.IndexField{
			{Name: "source", Type: db.IndexFieldTag},
			{
				Name:              "vector",
				Type:              db.IndexFieldVector,
				VectorAlgo:        db.VectorHNSW,
				VectorDim:         dim,
				VectorDistance:    db.DistanceCosine,
				VectorM:           hnsw.M,
				VectorEFConstruct: hnsw.EFConstruct,
			},
		},
	}
}
