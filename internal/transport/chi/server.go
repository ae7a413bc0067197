// Package chi exposes the catalog RAG API over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/gutlabs/catalograg/internal/domain"
	dombatch "github.com/gutlabs/catalograg/internal/domain/batch"
	extracthtml "github.com/gutlabs/catalograg/internal/extract/html"
	extractvision "github.com/gutlabs/catalograg/internal/extract/vision"
	logpkg "github.com/gutlabs/catalograg/internal/logger"
	answeruc "github.com/gutlabs/catalograg/internal/usecase/answer"
	cataloguc "github.com/gutlabs/catalograg/internal/usecase/catalog"
	healthuc "github.com/gutlabs/catalograg/internal/usecase/health"
	ingestuc "github.com/gutlabs/catalograg/internal/usecase/ingest"
	retrieveuc "github.com/gutlabs/catalograg/internal/usecase/retrieve"
)

// Upload limits. Catalog PDFs run to a few dozen MB; anything larger is
// a mistake, not a catalog.
const (
	maxFileUpload  = 64 << 20
	maxImageUpload = 16 << 20
	maxBulkRecords = 500
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// errorResponse is the uniform error payload.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Server wires the use case services to HTTP handlers.
type Server struct {
	ingest        *ingestuc.Service
	retrieve      *retrieveuc.Service
	answer        *answeruc.Service
	catalog       *cataloguc.Service
	collections   CollectionLister
	health        *healthuc.Service
	visioner      *extractvision.Extractor
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// CollectionLister lists vector collections for the admin endpoint.
type CollectionLister interface {
	List(ctx context.Context) ([]domain.CollectionInfo, error)
}

// NewServer creates the HTTP API server.
func NewServer(
	ingest *ingestuc.Service,
	retrieve *retrieveuc.Service,
	answer *answeruc.Service,
	catalog *cataloguc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		ingest:   ingest,
		retrieve: retrieve,
		answer:   answer,
		catalog:  catalog,
		health:   health,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrProductNotFound, http.StatusNotFound, "product_not_found"),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, "not_found"),
		sentinelHandler(domain.ErrInvalidInput, http.StatusBadRequest, "validation_failed"),
		sentinelHandler(domain.ErrNotInitialized, http.StatusServiceUnavailable, "not_configured"),
		sentinelHandler(domain.ErrEmbeddingUnavailable, http.StatusBadGateway, "embedding_provider_error"),
		sentinelHandler(domain.ErrModelUnavailable, http.StatusBadGateway, "model_provider_error"),
	}
	return s
}

// WithVision enables the image extraction endpoint.
func (s *Server) WithVision(v *extractvision.Extractor) *Server {
	s.visioner = v
	return s
}

// WithCollections enables the collection listing endpoint.
func (s *Server) WithCollections(lister CollectionLister) *Server {
	s.collections = lister
	return s
}

// Routes mounts every endpoint on the router.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/query", s.handleQuery)
		r.Post("/images/search", s.handleImageSearch)

		r.Post("/ingest/text", s.handleIngestText)
		r.Post("/ingest/file", s.handleIngestFile)
		r.Post("/ingest/image", s.handleIngestImage)

		r.Post("/clients", s.handleUpsertClient)
		r.Get("/clients", s.handleListClients)
		r.Route("/clients/{clientID}", func(r chi.Router) {
			r.Delete("/", s.handleDeleteClient)
			r.Get("/products", s.handleListProducts)
			r.Post("/products/bulk", s.handleBulkUpsert)
			r.Route("/products/{productID}", func(r chi.Router) {
				r.Put("/", s.handleUpsertProduct)
				r.Get("/", s.handleGetProduct)
				r.Delete("/", s.handleDeleteProduct)
				r.Post("/resync", s.handleResyncProduct)
			})
		})

		r.Get("/collections", s.handleListCollections)
		r.Post("/extract/html", s.handleExtractHTML)
		r.Post("/extract/image", s.handleExtractImage)
	})
}

// --- Query & search ---

type queryRequest struct {
	Question string `json:"question"`
	ClientID string `json:"client_id"`
	TopK     int    `json:"top_k"`
}

type queryResponse struct {
	Answer   string       `json:"answer"`
	Question string       `json:"question"`
	ClientID string       `json:"client_id"`
	Sources  []domain.Hit `json:"sources,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}
	if req.ClientID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "client_id is required")
		return
	}

	resp, err := s.answer.Ask(r.Context(), req.ClientID, req.Question, req.TopK)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Answer:   resp.Answer,
		Question: req.Question,
		ClientID: req.ClientID,
		Sources:  resp.Sources,
	})
}

type imageSearchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

func (s *Server) handleImageSearch(w http.ResponseWriter, r *http.Request) {
	var req imageSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}

	hits, err := s.retrieve.SearchImages(r.Context(), req.Query, req.TopK)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if hits == nil {
		hits = []domain.ImageHit{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"hits": hits})
}

// --- Ingestion ---

type ingestTextRequest struct {
	Text     string `json:"text"`
	ClientID string `json:"client_id"`
	Source   string `json:"source"`
}

func (s *Server) handleIngestText(w http.ResponseWriter, r *http.Request) {
	var req ingestTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}
	if req.ClientID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "client_id is required")
		return
	}

	res, err := s.ingest.ReplaceSource(r.Context(), req.ClientID, req.Text, req.Source)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":      "document ingested",
		"client_id":    req.ClientID,
		"collection":   res.Collection,
		"chunks_count": res.Chunks,
	})
}

func (s *Server) handleIngestFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxFileUpload); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid multipart form: "+err.Error())
		return
	}
	clientID := r.FormValue("client_id")
	if clientID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "client_id is required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "read upload: "+err.Error())
		return
	}

	res, err := s.ingest.IngestFile(r.Context(), clientID, header.Filename, data)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":      "file ingested",
		"client_id":    clientID,
		"filename":     header.Filename,
		"collection":   res.Collection,
		"chunks_count": res.Chunks,
	})
}

func (s *Server) handleIngestImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImageUpload); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "image is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "read upload: "+err.Error())
		return
	}

	id := r.FormValue("id")
	if id == "" {
		id = header.Filename
	}

	res, err := s.ingest.IngestImage(r.Context(), id, data, r.FormValue("description"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "image ingested",
		"id":         id,
		"collection": res.Collection,
		"ingested":   res.Chunks,
	})
}

// --- Clients ---

type upsertClientRequest struct {
	ClientID string `json:"client_id"`
	Name     string `json:"name"`
}

func (s *Server) handleUpsertClient(w http.ResponseWriter, r *http.Request) {
	var req upsertClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}

	client, err := s.catalog.UpsertClient(r.Context(), req.ClientID, req.Name)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := s.catalog.ListClients(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if clients == nil {
		clients = []domain.Client{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"clients": clients})
}

func (s *Server) handleDeleteClient(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.DeleteClient(r.Context(), chi.URLParam(r, "clientID")); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Products ---

func (s *Server) handleUpsertProduct(w http.ResponseWriter, r *http.Request) {
	var rec domain.ProductRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}
	rec.ProductID = chi.URLParam(r, "productID")

	res, err := s.catalog.UpsertProduct(r.Context(), chi.URLParam(r, "clientID"), rec)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := s.catalog.GetProduct(r.Context(), chi.URLParam(r, "clientID"), chi.URLParam(r, "productID"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.DeleteProduct(r.Context(), chi.URLParam(r, "clientID"), chi.URLParam(r, "productID")); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)

	products, total, err := s.catalog.ListProducts(r.Context(), chi.URLParam(r, "clientID"), limit, offset)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if products == nil {
		products = []domain.Product{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"products": products,
		"total":    total,
	})
}

func (s *Server) handleBulkUpsert(w http.ResponseWriter, r *http.Request) {
	var recs []domain.ProductRecord
	if err := json.NewDecoder(r.Body).Decode(&recs); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}
	if len(recs) == 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "empty batch")
		return
	}
	if len(recs) > maxBulkRecords {
		writeError(w, http.StatusBadRequest, "validation_failed",
			"batch too large: max "+strconv.Itoa(maxBulkRecords))
		return
	}

	results, summary := s.catalog.BulkUpsert(r.Context(), chi.URLParam(r, "clientID"), recs)
	writeJSON(w, http.StatusOK, map[string]any{
		"results": batchResultsToWire(results),
		"summary": summary,
	})
}

func (s *Server) handleResyncProduct(w http.ResponseWriter, r *http.Request) {
	chunks, err := s.catalog.ResyncProduct(r.Context(), chi.URLParam(r, "clientID"), chi.URLParam(r, "productID"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chunks_count": chunks})
}

// --- Collections & extraction ---

func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	if s.collections == nil {
		writeJSON(w, http.StatusOK, map[string]any{"collections": []domain.CollectionInfo{}})
		return
	}
	infos, err := s.collections.List(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"collections": infos})
}

func (s *Server) handleExtractHTML(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxFileUpload))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "read body: "+err.Error())
		return
	}

	sourceFile := r.URL.Query().Get("source_file")
	if sourceFile == "" {
		sourceFile = "page.html"
	}

	rec, err := extracthtml.ParseProduct(string(body), sourceFile)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "parse html: "+err.Error())
		return
	}
	if rec == nil {
		// Not a product page.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleExtractImage(w http.ResponseWriter, r *http.Request) {
	if s.visioner == nil {
		writeError(w, http.StatusServiceUnavailable, "not_configured", "vision extraction is not configured")
		return
	}
	if err := r.ParseMultipartForm(maxImageUpload); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "image is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "read upload: "+err.Error())
		return
	}

	pageID := strings.TrimSuffix(header.Filename, ".jpg")
	pageID = strings.TrimSuffix(pageID, ".png")
	recs, err := s.visioner.Extract(r.Context(), data, pageID)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	resp := map[string]any{"records": recs}

	// persist=true pushes the extracted records straight into the catalog.
	if r.URL.Query().Get("persist") == "true" {
		clientID := r.URL.Query().Get("client_id")
		if clientID == "" {
			writeError(w, http.StatusBadRequest, "validation_failed", "client_id is required when persist=true")
			return
		}
		results, summary := s.catalog.BulkUpsert(r.Context(), clientID, recs)
		resp["results"] = batchResultsToWire(results)
		resp["summary"] = summary
	}

	writeJSON(w, http.StatusOK, resp)
}

// --- Health ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())
	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// --- Helpers ---

type batchResultWire struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func batchResultsToWire(results []dombatch.Result) []batchResultWire {
	out := make([]batchResultWire, len(results))
	for i, res := range results {
		out[i] = batchResultWire{ID: res.ID(), Status: string(res.Status())}
		if err := res.Err(); err != nil {
			out[i].Error = err.Error()
		}
	}
	return out
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context())
	log.Warn("domain error", zap.Error(err))
	// Internal tool: the full error is more useful than a sanitized one.
	msg := err.Error()
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", msg)
}
