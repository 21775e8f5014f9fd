package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/machinegpt/internal/domain"
	"github.com/kailas-cloud/machinegpt/internal/metrics"
)

// defaultMaxBatch is the largest input list sent in one embeddings request.
const defaultMaxBatch = 100

// Embedder is an embedding provider using the OpenAI-compatible API (e.g. Nebius).
type Embedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	maxBatch   int
	user       string
	provider   string
	logger     *zap.Logger
}

// Config holds the provider settings shared by the embedder, generator and captioner.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	MaxBatch   int
	User       string
	Provider   string
	Logger     *zap.Logger
}

func newClient(cfg *Config) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}

// NewEmbedder creates an OpenAI-compatible embedding provider.
func NewEmbedder(cfg *Config) *Embedder {
	maxBatch := cfg.MaxBatch
	if maxBatch <= 0 {
		maxBatch = defaultMaxBatch
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Embedder{
		client:     newClient(cfg),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
		maxBatch:   maxBatch,
		user:       cfg.User,
		provider:   cfg.Provider,
		logger:     logger,
	}
}

// Embed implements domain.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	resp, err := e.call(ctx, []string{text}, func(resp openai.EmbeddingResponse) (string, error) {
		if len(resp.Data) == 0 {
			return "empty_response", fmt.Errorf("empty embedding response: %w", domain.ErrEmbeddingProviderError)
		}
		return "", nil
	})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{
		Embedding:    resp.Data[0].Embedding,
		PromptTokens: resp.Usage.PromptTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}, nil
}

// BatchEmbed implements domain.BatchEmbedder. Inputs above the provider batch
// limit are split into consecutive requests; vectors come back in input order.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, 0, len(texts))}
	for start := 0; start < len(texts); start += e.maxBatch {
		end := min(start+e.maxBatch, len(texts))
		vecs, usage, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch [%d:%d]: %w", start, end, err)
		}
		out.Embeddings = append(out.Embeddings, vecs...)
		out.PromptTokens += usage.PromptTokens
		out.TotalTokens += usage.TotalTokens
	}
	return out, nil
}

func (e *Embedder) embedBatch(ctx context.Context, texts []string) ([][]float32, openai.Usage, error) {
	resp, err := e.call(ctx, texts, func(resp openai.EmbeddingResponse) (string, error) {
		if len(resp.Data) != len(texts) {
			return "count_mismatch", fmt.Errorf("%w: sent %d texts, got %d vectors",
				domain.ErrEmbeddingCountMismatch, len(texts), len(resp.Data))
		}
		return "", nil
	})
	if err != nil {
		return nil, openai.Usage{}, err
	}

	// Providers may return items out of order.
	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	vecs := make([][]float32, len(data))
	for i, d := range data {
		vecs[i] = d.Embedding
	}
	return vecs, resp.Usage, nil
}

// call sends one embeddings request and records its outcome. check inspects a
// successful reply and returns a failure label with its error when the reply is unusable.
func (e *Embedder) call(
	ctx context.Context, texts []string, check func(openai.EmbeddingResponse) (string, error),
) (openai.EmbeddingResponse, error) {
	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		User:           e.user,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	obs := metrics.EmbeddingCall{Provider: e.provider, Model: string(e.model), Inputs: len(texts)}
	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, req)
	obs.Took = time.Since(start)

	if err != nil {
		obs.Failure = "api_error"
		obs.Record()
		e.logger.Debug("Embedding request failed", zap.Int("inputs", len(texts)), zap.Error(err))
		return openai.EmbeddingResponse{}, parseAPIError(err)
	}
	if failure, err := check(resp); err != nil {
		obs.Failure = failure
		obs.Record()
		return openai.EmbeddingResponse{}, err
	}

	obs.PromptTokens = resp.Usage.PromptTokens
	obs.TotalTokens = resp.Usage.TotalTokens
	obs.Record()
	return resp, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// parseAPIError extracts a human-readable error from the API response.
// All errors are wrapped with domain.ErrEmbeddingProviderError for correct 502 mapping.
func parseAPIError(err error) error {
	return wrapAPIError("embedding", err, domain.ErrEmbeddingProviderError)
}

func wrapAPIError(kind string, err error, wrap error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail != "" {
			return fmt.Errorf("%s API error %d: %s: %w",
				kind, reqErr.HTTPStatusCode, detail, wrap)
		}
		return fmt.Errorf("%s API error %d: %s: %w",
			kind, reqErr.HTTPStatusCode, string(reqErr.Body), wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s API error %d: %s: %w",
			kind, apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s request: %w: %w", kind, err, wrap)
	}
	return fmt.Errorf("%s request failed: %w", kind, wrap)
}

// extractDetail extracts the "detail" field from a JSON error body (Nebius error format).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
