package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/gutlabs/catalograg/internal/domain"
	"github.com/gutlabs/catalograg/internal/metrics"
)

// Vision calls a multimodal chat model with an image and an extraction
// instruction, returning the raw model output.
type Vision struct {
	client    *openai.Client
	model     string
	maxTokens int
	timeout   time.Duration
	logger    *zap.Logger
}

// VisionConfig holds the vision model settings.
type VisionConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	Logger    *zap.Logger
}

// NewVision creates a vision extraction client. Vision calls are slow:
// the default timeout is 120s.
func NewVision(cfg *VisionConfig) *Vision {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &Vision{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   timeout,
		logger:    cfg.Logger,
	}
}

// ExtractRaw sends the image with the instruction and returns the raw
// model text. The image goes inline as a base64 data URL.
func (v *Vision) ExtractRaw(ctx context.Context, image []byte, instruction string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	dataURL := fmt.Sprintf("data:%s;base64,%s",
		detectImageMIME(image), base64.StdEncoding.EncodeToString(image))

	req := openai.ChatCompletionRequest{
		Model:     v.model,
		MaxTokens: v.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: instruction},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
	}

	start := time.Now()
	resp, err := v.client.CreateChatCompletion(ctx, req)
	duration := time.Since(start)

	if err != nil {
		metrics.CompletionRequestsTotal.WithLabelValues(v.model, "vision", "error").Inc()
		return "", fmt.Errorf("vision completion: %v: %w", err, domain.ErrModelUnavailable)
	}
	if len(resp.Choices) == 0 {
		metrics.CompletionRequestsTotal.WithLabelValues(v.model, "vision", "error").Inc()
		return "", fmt.Errorf("empty vision response: %w", domain.ErrModelUnavailable)
	}

	metrics.CompletionRequestsTotal.WithLabelValues(v.model, "vision", "success").Inc()
	metrics.CompletionRequestDuration.WithLabelValues(v.model, "vision").Observe(duration.Seconds())

	return resp.Choices[0].Message.Content, nil
}

func detectImageMIME(image []byte) string {
	mime := http.DetectContentType(image)
	switch mime {
	case "image/png", "image/jpeg", "image/webp", "image/gif":
		return mime
	default:
		return "image/jpeg"
	}
}
