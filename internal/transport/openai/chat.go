package openai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/machinegpt/internal/domain"
)

// Generator answers prompts through the chat completions endpoint.
type Generator struct {
	client   *openai.Client
	model    string
	user     string
	provider string
	logger   *zap.Logger
}

// NewGenerator creates a chat completion provider.
func NewGenerator(cfg *Config) *Generator {
	return &Generator{
		client:   newClient(cfg),
		model:    cfg.Model,
		user:     cfg.User,
		provider: cfg.Provider,
		logger:   cfg.Logger,
	}
}

// Name implements domain.Generator.
func (g *Generator) Name() string { return g.provider }

// Model implements domain.Generator.
func (g *Generator) Model() string { return g.model }

// Complete implements domain.Generator.
func (g *Generator) Complete(ctx context.Context, p domain.Prompt) (domain.Completion, error) {
	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.System},
			{Role: openai.ChatMessageRoleUser, Content: p.User},
		},
		MaxTokens:   p.MaxTokens,
		Temperature: float32(p.Temperature),
		User:        g.user,
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return domain.Completion{}, wrapAPIError("chat", err, domain.ErrGeneration)
	}
	if len(resp.Choices) == 0 {
		return domain.Completion{}, fmt.Errorf("empty chat response: %w", domain.ErrGeneration)
	}

	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonLength {
		g.logger.Warn("Completion truncated at max tokens",
			zap.String("model", g.model), zap.Int("max_tokens", p.MaxTokens))
	}

	return domain.Completion{
		Text:         strings.TrimSpace(choice.Message.Content),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}
