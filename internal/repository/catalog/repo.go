// Package catalog persists clients and products in PostgreSQL.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gutlabs/catalograg/internal/domain"
)

// Repo implements the relational catalog store over database/sql with lib/pq.
type Repo struct {
	db *sql.DB
}

// New creates a catalog repository and ensures the schema exists.
func New(db *sql.DB) (*Repo, error) {
	r := &Repo{db: db}
	if err := r.ensureSchema(); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return r, nil
}

// ensureSchema creates the required tables if they don't exist.
func (r *Repo) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS products (
		id_produit TEXT NOT NULL,
		client_id TEXT NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
		source_file TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		metadata JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (id_produit, client_id)
	);

	CREATE INDEX IF NOT EXISTS idx_products_client ON products(client_id);
	CREATE INDEX IF NOT EXISTS idx_products_updated ON products(client_id, updated_at DESC);
	`

	_, err := r.db.Exec(schema)
	return err
}

// Ping checks database connectivity.
func (r *Repo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// UpsertClient creates or renames the client row. An empty name means
// "no name supplied": the row is created with the ID as name, and an
// existing row keeps whatever name it has. A non-empty name renames the
// client on conflict, so the implicit upsert on the product write path
// (which passes no name) never clobbers an explicit rename.
func (r *Repo) UpsertClient(ctx context.Context, id, name string) (domain.Client, error) {
	var c domain.Client
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO clients (id, name)
		VALUES ($1, CASE WHEN $2 = '' THEN $1 ELSE $2 END)
		ON CONFLICT (id) DO UPDATE SET
			name = CASE WHEN $2 = '' THEN clients.name ELSE $2 END
		RETURNING id, name, created_at
	`, id, name).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err != nil {
		return domain.Client{}, fmt.Errorf("upsert client %s: %w", id, err)
	}
	return c, nil
}

// GetClient returns a client by ID.
func (r *Repo) GetClient(ctx context.Context, id string) (domain.Client, error) {
	var c domain.Client
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, created_at FROM clients WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Client{}, domain.ErrNotFound
		}
		return domain.Client{}, fmt.Errorf("get client %s: %w", id, err)
	}
	return c, nil
}

// ListClients returns all clients ordered by creation time.
func (r *Repo) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, created_at FROM clients ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	clients := make([]domain.Client, 0)
	for rows.Next() {
		var c domain.Client
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// DeleteClient removes a client; products cascade.
func (r *Repo) DeleteClient(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete client %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpsertProduct inserts or refreshes a product row, bumping updated_at and
// reporting whether the row was newly created.
func (r *Repo) UpsertProduct(ctx context.Context, clientID string, rec domain.ProductRecord) (domain.Product, bool, error) {
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return domain.Product{}, false, fmt.Errorf("marshal metadata: %w", err)
	}
	if rec.Metadata == nil {
		metadata = []byte("{}")
	}

	var p domain.Product
	var raw []byte
	var created bool
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO products (id_produit, client_id, source_file, content, metadata)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id_produit, client_id) DO UPDATE SET
			source_file = EXCLUDED.source_file,
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			updated_at = NOW()
		RETURNING id_produit, client_id, source_file, content, metadata, created_at, updated_at,
			(created_at = updated_at)
	`, rec.ProductID, clientID, rec.SourceFile, rec.Content, metadata).Scan(
		&p.ProductID, &p.ClientID, &p.SourceFile, &p.Content, &raw, &p.CreatedAt, &p.UpdatedAt, &created,
	)
	if err != nil {
		return domain.Product{}, false, fmt.Errorf("upsert product %s: %w", rec.ProductID, err)
	}
	if err := json.Unmarshal(raw, &p.Metadata); err != nil {
		return domain.Product{}, false, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return p, created, nil
}

// GetProduct returns a product by ID within a client's catalog.
func (r *Repo) GetProduct(ctx context.Context, clientID, productID string) (domain.Product, error) {
	var p domain.Product
	var raw []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT id_produit, client_id, source_file, content, metadata, created_at, updated_at
		FROM products
		WHERE client_id = $1 AND id_produit = $2
	`, clientID, productID).Scan(
		&p.ProductID, &p.ClientID, &p.SourceFile, &p.Content, &raw, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("get product %s: %w", productID, err)
	}
	if err := json.Unmarshal(raw, &p.Metadata); err != nil {
		return domain.Product{}, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return p, nil
}

// ListProducts returns a client's products, most recently updated first.
func (r *Repo) ListProducts(ctx context.Context, clientID string, limit, offset int) ([]domain.Product, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id_produit, client_id, source_file, content, metadata, created_at, updated_at
		FROM products
		WHERE client_id = $1
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3
	`, clientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		var p domain.Product
		var raw []byte
		if err := rows.Scan(
			&p.ProductID, &p.ClientID, &p.SourceFile, &p.Content, &raw, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		if err := json.Unmarshal(raw, &p.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// ListAllProducts returns every product of a client without pagination.
// Used by resync to rebuild the vector collection.
func (r *Repo) ListAllProducts(ctx context.Context, clientID string) ([]domain.Product, error) {
	return r.ListProducts(ctx, clientID, 1<<30, 0)
}

// DeleteProduct removes a product row.
func (r *Repo) DeleteProduct(ctx context.Context, clientID, productID string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM products WHERE client_id = $1 AND id_produit = $2
	`, clientID, productID)
	if err != nil {
		return fmt.Errorf("delete product %s: %w", productID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

// CountProducts returns the number of products in a client's catalog.
func (r *Repo) CountProducts(ctx context.Context, clientID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM products WHERE client_id = $1
	`, clientID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return n, nil
}
