package catalograg

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gutlabs/catalograg/internal/domain"
)

func newTestAPI(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

func TestQuery(t *testing.T) {
	client := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/query" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["client_id"] != "acme" {
			t.Errorf("expected client_id acme, got %v", req["client_id"])
		}
		_ = json.NewEncoder(w).Encode(QueryResponse{
			Answer:   "49€99",
			ClientID: "acme",
			Sources:  []domain.Hit{{Text: "Prix: 49€99", Source: "product_fiche-1", Score: 0.91}},
		})
	})

	resp, err := client.Query(context.Background(), "acme", "prix de la perceuse ?", 5)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if resp.Answer != "49€99" {
		t.Errorf("expected answer 49€99, got %q", resp.Answer)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].Source != "product_fiche-1" {
		t.Errorf("unexpected sources: %+v", resp.Sources)
	}
}

func TestIngestText(t *testing.T) {
	client := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"collection":   "text_embeddings_acme",
			"chunks_count": 3,
		})
	})

	res, err := client.IngestText(context.Background(), "acme", "some catalog text", "notes")
	if err != nil {
		t.Fatalf("IngestText: %v", err)
	}
	if res.Collection != "text_embeddings_acme" || res.Chunks != 3 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestUpsertProduct(t *testing.T) {
	client := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/clients/acme/products/fiche-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var rec domain.ProductRecord
		_ = json.NewDecoder(r.Body).Decode(&rec)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(UpsertProductResult{
			Product: domain.Product{ProductID: rec.ProductID, ClientID: "acme", Content: rec.Content},
			Created: true,
			Chunks:  2,
		})
	})

	res, err := client.UpsertProduct(context.Background(), "acme", domain.ProductRecord{
		ProductID: "fiche-1",
		Content:   "Produit: Perceuse. Prix: 49€99",
	})
	if err != nil {
		t.Fatalf("UpsertProduct: %v", err)
	}
	if !res.Created || res.Chunks != 2 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestGetProductNotFound(t *testing.T) {
	client := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"code":    "product_not_found",
			"message": "product not found",
		})
	})

	_, err := client.GetProduct(context.Background(), "acme", "missing")
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Code != "product_not_found" {
		t.Errorf("unexpected APIError: %+v", apiErr)
	}
}

func TestDeleteProduct(t *testing.T) {
	var deleted bool
	client := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			deleted = true
		}
		w.WriteHeader(http.StatusNoContent)
	})

	if err := client.DeleteProduct(context.Background(), "acme", "fiche-1"); err != nil {
		t.Fatalf("DeleteProduct: %v", err)
	}
	if !deleted {
		t.Error("expected DELETE request")
	}
}

func TestHealthDegradedReturnsReport(t *testing.T) {
	client := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(HealthStatus{
			Status: "degraded",
			Checks: map[string]string{"postgres": "ok", "vector_store": "error: dial tcp"},
		})
	})

	status, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if status.Status != "degraded" {
		t.Errorf("expected degraded, got %q", status.Status)
	}
	if status.Checks["postgres"] != "ok" {
		t.Errorf("unexpected checks: %v", status.Checks)
	}
}

func TestValidationErrorMapsToInvalidInput(t *testing.T) {
	client := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"code":    "validation_failed",
			"message": "client_id is required",
		})
	})

	_, err := client.Query(context.Background(), "", "question", 0)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
