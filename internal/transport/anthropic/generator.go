// Package anthropic is a domain.Generator over the Anthropic Messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/machinegpt/internal/domain"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	defaultTimeout   = 120 * time.Second
	defaultMaxTokens = 1024
	apiVersion       = "2023-06-01"
)

// Config holds the Anthropic provider settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Logger  *zap.Logger
}

// Generator answers prompts through /v1/messages.
type Generator struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
	logger  *zap.Logger
}

type messagesRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float32   `json:"temperature"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewGenerator creates an Anthropic generator.
func NewGenerator(cfg Config) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("anthropic: model is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Generator{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		logger:  cfg.Logger,
	}, nil
}

// Name implements domain.Generator.
func (g *Generator) Name() string { return "anthropic" }

// Model implements domain.Generator.
func (g *Generator) Model() string { return g.model }

// Complete implements domain.Generator.
func (g *Generator) Complete(ctx context.Context, p domain.Prompt) (domain.Completion, error) {
	maxTokens := p.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	body, err := json.Marshal(messagesRequest{
		Model:       g.model,
		System:      p.System,
		Messages:    []message{{Role: "user", Content: p.User}},
		MaxTokens:   maxTokens,
		Temperature: float32(p.Temperature),
	})
	if err != nil {
		return domain.Completion{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return domain.Completion{}, fmt.Errorf("create request: %w", err)
	}
	g.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return domain.Completion{}, fmt.Errorf("anthropic request: %w: %w", err, domain.ErrGeneration)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Completion{}, fmt.Errorf("read response: %w: %w", err, domain.ErrGeneration)
	}

	var out messagesResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return domain.Completion{}, fmt.Errorf("anthropic status %d: decode response: %w: %w",
			resp.StatusCode, err, domain.ErrGeneration)
	}
	if out.Error != nil {
		return domain.Completion{}, fmt.Errorf("anthropic API error %d: %s: %w",
			resp.StatusCode, out.Error.Message, domain.ErrGeneration)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Completion{}, fmt.Errorf("anthropic API error %d: %s: %w",
			resp.StatusCode, strings.TrimSpace(string(raw)), domain.ErrGeneration)
	}

	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return domain.Completion{}, fmt.Errorf("anthropic: no text content: %w", domain.ErrGeneration)
	}
	if out.StopReason == "max_tokens" {
		g.logger.Warn("Completion truncated at max tokens",
			zap.String("model", g.model), zap.Int("max_tokens", maxTokens))
	}

	return domain.Completion{
		Text:         strings.TrimSpace(text.String()),
		InputTokens:  out.Usage.InputTokens,
		OutputTokens: out.Usage.OutputTokens,
	}, nil
}

// HealthCheck lists models, which validates the key without running inference.
func (g *Generator) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/v1/models", http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	g.setHeaders(req)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("anthropic ping: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("anthropic ping: status %d", resp.StatusCode)
	}
	return nil
}

func (g *Generator) setHeaders(req *http.Request) {
	req.Header.Set("x-api-key", g.apiKey)
	req.Header.Set("anthropic-version", apiVersion)
}
