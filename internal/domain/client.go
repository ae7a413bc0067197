package domain

import "time"

// Client is a tenant of the service. Each client owns a product catalog
// and an isolated text vector collection.
type Client struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
