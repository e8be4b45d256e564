package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/ubuildacademy/takeoff-autocount/internal/domain"
)

// Compile-time check: Describer implements domain.SymbolDescriber.
var _ domain.SymbolDescriber = (*Describer)(nil)

const describePrompt = "This is a small symbol cropped from a construction drawing. " +
	"Name the symbol in at most six words (e.g. \"duplex receptacle\", " +
	"\"sprinkler head\", \"supply diffuser\"). Reply with the name only."

// Describer labels extracted symbol templates via an OpenAI-compatible
// vision chat API.
type Describer struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// Config holds the describer provider settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Logger  *zap.Logger
}

// NewDescriber creates a vision-backed symbol describer.
func NewDescriber(cfg *Config) *Describer {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Describer{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: cfg.Logger,
	}
}

// Describe implements domain.SymbolDescriber.
func (d *Describer) Describe(ctx context.Context, templatePNG []byte) (string, error) {
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(templatePNG)

	resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     d.model,
		MaxTokens: 30,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: describePrompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailLow,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("describe symbol: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("describe symbol: empty response")
	}

	desc := strings.TrimSpace(resp.Choices[0].Message.Content)
	d.logger.Debug("symbol described", zap.String("description", desc))
	return desc, nil
}
