// Package ingest turns documents into embedded chunks inside per-tenant
// vector collections.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/gutlabs/catalograg/internal/domain"
	extractpdf "github.com/gutlabs/catalograg/internal/extract/pdf"
	"github.com/gutlabs/catalograg/internal/metrics"
)

// describePrompt is used when an image arrives without a caption.
const describePrompt = `Décris cette image de produit en une ou deux phrases factuelles ` +
	`(type de produit, marque visible, caractéristiques).`

// Result reports the outcome of one ingestion.
type Result struct {
	Collection string `json:"collection"`
	Chunks     int    `json:"chunks"`
	Deleted    int    `json:"deleted,omitempty"`
	Tokens     int    `json:"tokens,omitempty"`
}

// Service ingests text, files and images into vector collections.
type Service struct {
	chunks    ChunkRepository
	colls     CollectionEnsurer
	embedder  BatchEmbedder
	imgEmb    ImageEmbedder
	describer Describer
	splitter  Splitter
	logger    *zap.Logger
}

// New creates an ingestion service. imgEmb and describer may be nil when
// image ingestion is not configured.
func New(
	chunks ChunkRepository,
	colls CollectionEnsurer,
	embedder BatchEmbedder,
	splitter Splitter,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		chunks:   chunks,
		colls:    colls,
		embedder: embedder,
		splitter: splitter,
		logger:   logger,
	}
}

// WithImages enables image ingestion.
func (s *Service) WithImages(imgEmb ImageEmbedder, describer Describer) *Service {
	s.imgEmb = imgEmb
	s.describer = describer
	return s
}

// IngestText splits, embeds and stores a document in the client's text
// collection. Chunk IDs are "{source}_{i}" so a re-ingested source
// overwrites its own chunks deterministically.
func (s *Service) IngestText(ctx context.Context, clientID, text, source string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, fmt.Errorf("empty document: %w", domain.ErrInvalidInput)
	}
	if source == "" {
		return Result{}, fmt.Errorf("missing source: %w", domain.ErrInvalidInput)
	}

	collection, err := s.colls.EnsureText(ctx, clientID)
	if err != nil {
		return Result{}, fmt.Errorf("ensure collection: %w", err)
	}

	chunks := s.splitter.Split(text)
	if len(chunks) == 0 {
		return Result{Collection: collection}, nil
	}

	batch, err := s.embedder.BatchEmbed(ctx, chunks)
	if err != nil {
		return Result{}, fmt.Errorf("embed chunks: %w", err)
	}
	if len(batch.Embeddings) != len(chunks) {
		return Result{}, fmt.Errorf(
			"embedding count mismatch: got %d, want %d: %w",
			len(batch.Embeddings), len(chunks), domain.ErrEmbeddingUnavailable,
		)
	}

	records := make([]domain.VectorRecord, len(chunks))
	for i, chunk := range chunks {
		records[i] = domain.VectorRecord{
			ID:     fmt.Sprintf("%s_%d", source, i),
			Vector: batch.Embeddings[i],
			Fields: map[string]string{
				"text":   chunk,
				"source": source,
			},
		}
	}

	if err := s.chunks.UpsertBatch(ctx, collection, records); err != nil {
		return Result{}, fmt.Errorf("store chunks: %w", err)
	}

	metrics.IngestedChunksTotal.WithLabelValues("text").Add(float64(len(records)))
	s.logger.Info("document ingested",
		zap.String("collection", collection),
		zap.String("source", source),
		zap.Int("chunks", len(records)),
		zap.Int("tokens", batch.TotalTokens),
	)

	return Result{Collection: collection, Chunks: len(records), Tokens: batch.TotalTokens}, nil
}

// ReplaceSource removes every chunk previously ingested under source and
// ingests the new content in its place. The delete runs even when the
// new document shrinks to fewer chunks than the old one.
func (s *Service) ReplaceSource(ctx context.Context, clientID, text, source string) (Result, error) {
	collection, err := s.colls.EnsureText(ctx, clientID)
	if err != nil {
		return Result{}, fmt.Errorf("ensure collection: %w", err)
	}

	deleted, err := s.chunks.DeleteBySource(ctx, collection, source)
	if err != nil {
		return Result{}, fmt.Errorf("delete previous chunks: %w", err)
	}
	if deleted > 0 {
		metrics.DeletedChunksTotal.Add(float64(deleted))
	}

	res, err := s.IngestText(ctx, clientID, text, source)
	if err != nil {
		return Result{}, err
	}
	res.Deleted = deleted
	return res, nil
}

// DeleteSource removes every chunk ingested under source.
func (s *Service) DeleteSource(ctx context.Context, clientID, source string) (int, error) {
	collection, err := s.colls.EnsureText(ctx, clientID)
	if err != nil {
		return 0, fmt.Errorf("ensure collection: %w", err)
	}
	deleted, err := s.chunks.DeleteBySource(ctx, collection, source)
	if err != nil {
		return 0, fmt.Errorf("delete chunks: %w", err)
	}
	if deleted > 0 {
		metrics.DeletedChunksTotal.Add(float64(deleted))
	}
	return deleted, nil
}

// IngestFile decodes an uploaded file and ingests its text. PDF, plain
// text and markdown are supported. The source is the filename with dots
// replaced so chunk IDs stay valid tag values.
func (s *Service) IngestFile(ctx context.Context, clientID, filename string, data []byte) (Result, error) {
	var text string
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		extracted, err := extractpdf.Text(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return Result{}, fmt.Errorf("extract pdf %q: %w", filename, err)
		}
		text = extracted
	case ".txt", ".md":
		text = string(data)
	default:
		return Result{}, fmt.Errorf("unsupported file type %q: %w", filename, domain.ErrInvalidInput)
	}

	return s.ReplaceSource(ctx, clientID, text, SourceFromFilename(filename))
}

// IngestImage embeds an image into the shared image collection under id.
// When description is empty a caption is generated first.
func (s *Service) IngestImage(ctx context.Context, id string, image []byte, description string) (Result, error) {
	if s.imgEmb == nil {
		return Result{}, fmt.Errorf("image ingestion disabled: %w", domain.ErrNotInitialized)
	}
	if id == "" {
		return Result{}, fmt.Errorf("missing image id: %w", domain.ErrInvalidInput)
	}
	if len(image) == 0 {
		return Result{}, fmt.Errorf("empty image: %w", domain.ErrInvalidInput)
	}

	if description == "" && s.describer != nil {
		desc, err := s.describer.ExtractRaw(ctx, image, describePrompt)
		if err != nil {
			s.logger.Warn("image description failed", zap.String("id", id), zap.Error(err))
		} else {
			description = strings.TrimSpace(desc)
		}
	}

	collection, err := s.colls.EnsureImage(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("ensure image collection: %w", err)
	}

	vector, err := s.imgEmb.EmbedImage(ctx, image)
	if err != nil {
		return Result{}, fmt.Errorf("embed image: %w", err)
	}

	record := domain.VectorRecord{
		ID:     id,
		Vector: vector,
		Fields: map[string]string{
			"image_path":  id,
			"description": description,
			"source":      id,
		},
	}
	if err := s.chunks.UpsertBatch(ctx, collection, []domain.VectorRecord{record}); err != nil {
		return Result{}, fmt.Errorf("store image: %w", err)
	}

	metrics.IngestedChunksTotal.WithLabelValues("image").Inc()
	return Result{Collection: collection, Chunks: 1}, nil
}

// SourceFromFilename converts a filename into a source tag, e.g.
// "manual v2.pdf" -> "manual_v2_pdf".
func SourceFromFilename(filename string) string {
	base := filepath.Base(filename)
	if base == "" || base == "." || base == "/" {
		return "unknown"
	}
	base = strings.ReplaceAll(base, ".", "_")
	return strings.ReplaceAll(base, " ", "_")
}
