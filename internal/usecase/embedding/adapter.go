// Package embedding adapts the provider decorator chain to the pipeline's embedding contract.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/machinegpt/internal/domain"
)

// Adapter routes texts to the document or query chain and enforces one vector per input.
type Adapter struct {
	document domain.Embedder
	query    domain.Embedder
	logger   *zap.Logger
}

// NewAdapter creates an Adapter over two fully built chains.
func NewAdapter(document, query domain.Embedder, logger *zap.Logger) *Adapter {
	return &Adapter{document: document, query: query, logger: logger}
}

// EmbedTexts returns vectors in input order.
// Provider failures wrap ErrEmbeddingProviderError; a short or long reply is ErrEmbeddingCountMismatch.
func (a *Adapter) EmbedTexts(ctx context.Context, texts []string, mode domain.EmbedMode) ([][]float32, error) {
	chain, err := a.chain(mode)
	if err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, nil
	}

	res, err := domain.BatchVia(ctx, chain, texts)
	if err != nil {
		if errors.Is(err, domain.ErrEmbeddingCountMismatch) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingProviderError, ctxErr)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingProviderError, err)
	}
	if len(res.Embeddings) != len(texts) {
		return nil, domain.NewEmbeddingCountMismatch(len(res.Embeddings), len(texts))
	}
	for i, v := range res.Embeddings {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: empty vector at %d", domain.ErrEmbeddingProviderError, i)
		}
	}

	a.logger.Debug("Texts embedded",
		zap.String("mode", string(mode)),
		zap.Int("count", len(texts)),
		zap.Int("total_tokens", res.TotalTokens),
	)
	return res.Embeddings, nil
}

func (a *Adapter) chain(mode domain.EmbedMode) (domain.Embedder, error) {
	switch mode {
	case domain.EmbedModeDocument:
		return a.document, nil
	case domain.EmbedModeQuery:
		return a.query, nil
	}
	return nil, fmt.Errorf("unknown embed mode %q", mode)
}
