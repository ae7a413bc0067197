package catalograg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gutlabs/catalograg/internal/domain"
)

const defaultTimeout = 60 * time.Second

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	httpClient *http.Client
	timeout    time.Duration
}

// WithHTTPClient sets a custom HTTP client (transport, proxy, tracing).
func WithHTTPClient(hc *http.Client) Option {
	return optionFunc(func(c *clientConfig) {
		c.httpClient = hc
	})
}

// WithTimeout sets the per-request timeout. Ignored when WithHTTPClient
// is also given.
func WithTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.timeout = d
	})
}

// Client is the catalograg API client.
type Client struct {
	baseURL string
	hc      *http.Client
}

// New creates a client for the API served at baseURL, e.g.
// "http://localhost:8080".
func New(baseURL string, opts ...Option) *Client {
	cfg := &clientConfig{timeout: defaultTimeout}
	for _, o := range opts {
		o.apply(cfg)
	}
	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      hc,
	}
}

// QueryResponse is the answer to a catalog question.
type QueryResponse struct {
	Answer   string       `json:"answer"`
	Question string       `json:"question"`
	ClientID string       `json:"client_id"`
	Sources  []domain.Hit `json:"sources"`
}

// Query asks a question against a client's catalog. topK <= 0 uses the
// server default.
func (c *Client) Query(ctx context.Context, clientID, question string, topK int) (QueryResponse, error) {
	var out QueryResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/query", map[string]any{
		"client_id": clientID,
		"question":  question,
		"top_k":     topK,
	}, &out)
	return out, err
}

// IngestResult reports what an ingestion call stored.
type IngestResult struct {
	Collection string `json:"collection"`
	Chunks     int    `json:"chunks_count"`
}

// IngestText chunks and indexes a document, replacing any previous
// chunks from the same source.
func (c *Client) IngestText(ctx context.Context, clientID, text, source string) (IngestResult, error) {
	var out IngestResult
	err := c.do(ctx, http.MethodPost, "/api/v1/ingest/text", map[string]any{
		"client_id": clientID,
		"text":      text,
		"source":    source,
	}, &out)
	return out, err
}

// UpsertProductResult reports a product upsert.
type UpsertProductResult struct {
	Product domain.Product `json:"product"`
	Created bool           `json:"created"`
	Chunks  int            `json:"chunks"`
}

// UpsertProduct creates or updates a product and reindexes its chunks.
func (c *Client) UpsertProduct(ctx context.Context, clientID string, rec domain.ProductRecord) (UpsertProductResult, error) {
	var out UpsertProductResult
	path := fmt.Sprintf("/api/v1/clients/%s/products/%s",
		url.PathEscape(clientID), url.PathEscape(rec.ProductID))
	err := c.do(ctx, http.MethodPut, path, rec, &out)
	return out, err
}

// GetProduct fetches one product row.
func (c *Client) GetProduct(ctx context.Context, clientID, productID string) (domain.Product, error) {
	var out domain.Product
	path := fmt.Sprintf("/api/v1/clients/%s/products/%s",
		url.PathEscape(clientID), url.PathEscape(productID))
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// DeleteProduct removes a product row and its indexed chunks.
func (c *Client) DeleteProduct(ctx context.Context, clientID, productID string) error {
	path := fmt.Sprintf("/api/v1/clients/%s/products/%s",
		url.PathEscape(clientID), url.PathEscape(productID))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// HealthStatus is the aggregated service health.
type HealthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Health reports the health of the service and its backends. A degraded
// service still returns a report, not an error.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	var out HealthStatus
	err := c.do(ctx, http.MethodGet, "/health", nil, &out)
	if err != nil && out.Status != "" {
		// 503 carries the report body.
		return out, nil
	}
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("catalograg: encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("catalograg: build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("catalograg: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("catalograg: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		// Health is special-cased by the caller; decode the body anyway
		// in case it is a report rather than an error payload.
		if out != nil {
			_ = json.Unmarshal(raw, out)
		}
		return apiError(resp.StatusCode, raw)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("catalograg: decode response: %w", err)
	}
	return nil
}
