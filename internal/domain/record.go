package domain

// VectorRecord is one chunk ready for indexing: its stable ID, embedding
// vector and the scalar fields stored next to it (text, source).
type VectorRecord struct {
	ID     string
	Vector []float32
	Fields map[string]string
}
