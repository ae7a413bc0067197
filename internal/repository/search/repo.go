// Package search runs KNN retrieval over collection indexes and converts
// raw index distances into similarity scores.
package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/gutlabs/catalograg/internal/db"
	"github.com/gutlabs/catalograg/internal/domain"
)

// store is the consumer interface for search (ISP).
type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Repo implements retrieval against the vector store.
type Repo struct {
	store store
}

// New creates a search repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// Texts returns the k nearest chunks for the query vector. Score is
// 1 - cosine distance. An unknown index yields an empty result, not an
// error: a client that never ingested anything has no index yet.
func (r *Repo) Texts(ctx context.Context, collection string, vector []float32, k int) ([]domain.Hit, error) {
	result, err := r.knn(ctx, collection, vector, k, []string{"text", "source"})
	if err != nil {
		return nil, err
	}

	hits := make([]domain.Hit, 0, len(result.Entries))
	for _, e := range result.Entries {
		hits = append(hits, domain.Hit{
			Text:   e.Fields["text"],
			Source: e.Fields["source"],
			Score:  1.0 - e.Score,
		})
	}
	return hits, nil
}

// Images returns the k nearest images from the shared image collection.
func (r *Repo) Images(ctx context.Context, vector []float32, k int) ([]domain.ImageHit, error) {
	result, err := r.knn(ctx, domain.ImageCollection, vector, k, []string{"image_path", "description"})
	if err != nil {
		return nil, err
	}

	hits := make([]domain.ImageHit, 0, len(result.Entries))
	for _, e := range result.Entries {
		hits = append(hits, domain.ImageHit{
			ImagePath:   e.Fields["image_path"],
			Description: e.Fields["description"],
			Score:       1.0 - e.Score,
		})
	}
	return hits, nil
}

func (r *Repo) knn(ctx context.Context, collection string, vector []float32, k int, fields []string) (*db.SearchResult, error) {
	result, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    indexName(collection),
		Vector:       vector,
		K:            k,
		ReturnFields: fields,
	})
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return &db.SearchResult{}, nil
		}
		return nil, fmt.Errorf("knn %s: %w", collection, err)
	}
	return result, nil
}

func indexName(collection string) string {
	return fmt.Sprintf("%s%s:idx", domain.KeyPrefix, collection)
}
