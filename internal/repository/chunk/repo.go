// Package chunk persists embedded text chunks as hashes under the
// collection prefix, indexed by the collection's FT index.
package chunk

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/gutlabs/catalograg/internal/db"
	"github.com/gutlabs/catalograg/internal/db/redis"
	"github.com/gutlabs/catalograg/internal/domain"
)

// store is the consumer interface for chunks (ISP).
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	SearchKeys(ctx context.Context, index, query string, limit int) ([]string, error)
	DelMulti(ctx context.Context, keys []string) error
}

// Repo implements chunk persistence against the vector store.
type Repo struct {
	store     store
	deleteCap int
}

// New creates a chunk repository.
func New(s store) *Repo {
	return &Repo{store: s, deleteCap: 10000}
}

// UpsertBatch stores records in a single pipelined round-trip. The vector
// is serialized as little-endian float32 bytes for the FT index.
func (r *Repo) UpsertBatch(ctx context.Context, collection string, records []domain.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	items := make([]db.HashSetItem, len(records))
	for i, rec := range records {
		if rec.ID == "" {
			return fmt.Errorf("record %d: %w: empty id", i, domain.ErrInvalidInput)
		}
		fields := make(map[string]string, len(rec.Fields)+1)
		for k, v := range rec.Fields {
			fields[k] = v
		}
		fields["vector"] = vectorToBytes(rec.Vector)
		items[i] = db.HashSetItem{Key: chunkKey(collection, rec.ID), Fields: fields}
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("hset chunks: %w", err)
	}
	return nil
}

// DeleteBySource removes every chunk whose source tag matches. Returns the
// number of deleted chunks. A missing index means nothing to delete.
func (r *Repo) DeleteBySource(ctx context.Context, collection, source string) (int, error) {
	query := fmt.Sprintf("@source:{%s}", redis.EscapeTag(source))
	keys, err := r.store.SearchKeys(ctx, indexName(collection), query, r.deleteCap)
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("search source %s: %w", source, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	if err := r.store.DelMulti(ctx, keys); err != nil {
		return 0, fmt.Errorf("del chunks: %w", err)
	}
	return len(keys), nil
}

func chunkKey(collection, id string) string {
	return fmt.Sprintf("%s%s:%s", domain.KeyPrefix, collection, id)
}

func indexName(collection string) string {
	return fmt.Sprintf("%s%s:idx", domain.KeyPrefix, collection)
}

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
