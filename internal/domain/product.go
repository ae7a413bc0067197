package domain

import "time"

// ProductRecord is the wire shape for a single product upsert. Metadata is
// free-form and stored as JSON alongside the row.
type ProductRecord struct {
	ProductID  string         `json:"id_produit"`
	SourceFile string         `json:"source_file"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata"`
}

// Product is a stored catalog row, scoped to its owning client.
type Product struct {
	ProductID  string         `json:"id_produit"`
	ClientID   string         `json:"client_id"`
	SourceFile string         `json:"source_file"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}
