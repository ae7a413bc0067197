package catalograg

import (
	"encoding/json"
	"fmt"

	"github.com/gutlabs/catalograg/internal/domain"
)

// Sentinel errors re-exported from the domain layer. API error codes are
// mapped back to these, so errors.Is works across the wire.
var (
	ErrNotFound             = domain.ErrNotFound
	ErrProductNotFound      = domain.ErrProductNotFound
	ErrInvalidInput         = domain.ErrInvalidInput
	ErrNotInitialized       = domain.ErrNotInitialized
	ErrEmbeddingUnavailable = domain.ErrEmbeddingUnavailable
	ErrModelUnavailable     = domain.ErrModelUnavailable
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	sentinel   error
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("catalograg: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("catalograg: %s: %s", e.Code, e.Message)
}

// Unwrap exposes the matching sentinel when the error code has one.
func (e *APIError) Unwrap() error { return e.sentinel }

var codeSentinels = map[string]error{
	"not_found":                ErrNotFound,
	"product_not_found":        ErrProductNotFound,
	"validation_failed":        ErrInvalidInput,
	"bad_request":              ErrInvalidInput,
	"not_configured":           ErrNotInitialized,
	"embedding_provider_error": ErrEmbeddingUnavailable,
	"model_provider_error":     ErrModelUnavailable,
}

func apiError(status int, body []byte) error {
	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &payload)

	return &APIError{
		StatusCode: status,
		Code:       payload.Code,
		Message:    payload.Message,
		sentinel:   codeSentinels[payload.Code],
	}
}
