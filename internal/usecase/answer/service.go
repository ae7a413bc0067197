// Package answer composes grounded answers from retrieved context.
package answer

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/gutlabs/catalograg/internal/domain"
)

// systemPrompt pins the model to the retrieved context. Answering from
// world knowledge defeats the point of retrieval, so the prompt forbids
// it explicitly.
const systemPrompt = `You are an assistant answering questions about a product catalog. ` +
	`Answer using ONLY the provided context. ` +
	`If the context does not contain the information needed, state clearly that ` +
	`you cannot answer from the available documents. ` +
	`Answer in the language of the question.`

// Completer produces one completion for a system/user prompt pair.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Retriever assembles the context block for a tenant's question.
type Retriever interface {
	Context(ctx context.Context, clientID, query string, k int) (string, []domain.Hit, error)
}

// Response carries the generated answer with its supporting hits.
type Response struct {
	Answer  string       `json:"answer"`
	Sources []domain.Hit `json:"sources"`
}

// Service answers questions over a tenant's ingested documents.
type Service struct {
	retriever Retriever
	llm       Completer
	logger    *zap.Logger
}

func New(retriever Retriever, llm Completer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{retriever: retriever, llm: llm, logger: logger}
}

// Ask retrieves the k best chunks for the question and generates an
// answer grounded in them. An empty retrieval still goes to the model,
// which then reports that the documents do not cover the question.
func (s *Service) Ask(ctx context.Context, clientID, question string, k int) (Response, error) {
	if s.llm == nil {
		return Response{}, fmt.Errorf("no completion model configured: %w", domain.ErrNotInitialized)
	}
	if strings.TrimSpace(question) == "" {
		return Response{}, fmt.Errorf("empty question: %w", domain.ErrInvalidInput)
	}

	block, hits, err := s.retriever.Context(ctx, clientID, question, k)
	if err != nil {
		return Response{}, fmt.Errorf("retrieve context: %w", err)
	}
	if block == "" {
		block = "(aucun document trouvé)"
	}

	user := fmt.Sprintf("Contexte :\n%s\n\nQuestion : %s", block, question)
	text, err := s.llm.Complete(ctx, systemPrompt, user)
	if err != nil {
		return Response{}, fmt.Errorf("generate answer: %w", err)
	}

	s.logger.Info("answer generated",
		zap.String("client_id", clientID),
		zap.Int("sources", len(hits)),
	)
	return Response{Answer: strings.TrimSpace(text), Sources: hits}, nil
}
