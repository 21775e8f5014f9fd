// Package generation assembles retrieved passages into a prompt and asks the
// configured chat provider for a grounded answer.
package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/machinegpt/internal/domain"
	"github.com/kailas-cloud/machinegpt/internal/domain/vector"
	"github.com/kailas-cloud/machinegpt/internal/metrics"
)

// Config holds the generation parameters.
type Config struct {
	ContextLimit int
	MaxTokens    int
	Temperature  float64
	// TokenBudget caps system prompt plus question tokens. 0 disables the cap.
	TokenBudget int
}

// DefaultConfig returns 3 passages, 1000 max tokens, temperature 0.3 and no budget.
func DefaultConfig() Config {
	return Config{
		ContextLimit: domain.DefaultContextLimit,
		MaxTokens:    domain.DefaultMaxTokens,
		Temperature:  domain.DefaultTemperature,
	}
}

// Result is the generated answer and the matches that made it into the prompt, in prompt order.
type Result struct {
	Text      string
	TokensIn  int
	TokensOut int
	Used      []vector.Match
}

// Service builds prompts and calls the provider.
type Service struct {
	provider  domain.Generator
	tokenizer Tokenizer
	cfg       Config
	logger    *zap.Logger
}

// New creates a generation Service. tokenizer may be nil when TokenBudget is 0.
func New(provider domain.Generator, tokenizer Tokenizer, cfg Config, logger *zap.Logger) (*Service, error) {
	if cfg.ContextLimit <= 0 {
		cfg.ContextLimit = domain.DefaultContextLimit
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = domain.DefaultMaxTokens
	}
	if cfg.TokenBudget > 0 && tokenizer == nil {
		return nil, errors.New("token budget requires a tokenizer")
	}
	return &Service{provider: provider, tokenizer: tokenizer, cfg: cfg, logger: logger}, nil
}

// Generate answers question from the top ContextLimit matches.
// Provider failures wrap ErrGeneration.
func (s *Service) Generate(ctx context.Context, question string, matches []vector.Match) (Result, error) {
	n := min(s.cfg.ContextLimit, len(matches))
	passages := make([]passage, n)
	for i, m := range matches[:n] {
		passages[i] = passage{match: m, text: m.Metadata.Text}
	}
	passages = s.fit(question, passages)

	prompt := domain.Prompt{
		System:      systemPrompt(passages),
		User:        question,
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
	}

	provider, model := s.provider.Name(), s.provider.Model()
	start := time.Now()
	c, err := s.provider.Complete(ctx, prompt)
	took := time.Since(start)
	if err != nil {
		metrics.GenerationDuration.WithLabelValues(provider, model, "error").Observe(took.Seconds())
		return Result{}, fmt.Errorf("%w: %s: %w", domain.ErrGeneration, provider, err)
	}
	metrics.GenerationDuration.WithLabelValues(provider, model, "success").Observe(took.Seconds())
	metrics.GenerationTokensTotal.WithLabelValues(provider, model, "input").Add(float64(c.InputTokens))
	metrics.GenerationTokensTotal.WithLabelValues(provider, model, "output").Add(float64(c.OutputTokens))

	used := make([]vector.Match, len(passages))
	for i, p := range passages {
		used[i] = p.match
	}

	s.logger.Debug("Answer generated",
		zap.String("provider", provider),
		zap.String("model", model),
		zap.Int("passages", len(passages)),
		zap.Int("tokens_in", c.InputTokens),
		zap.Int("tokens_out", c.OutputTokens),
		zap.Duration("took", took),
	)

	return Result{Text: c.Text, TokensIn: c.InputTokens, TokensOut: c.OutputTokens, Used: used}, nil
}

// fit trims passage texts, lowest-ranked first, until the prompt fits TokenBudget.
// A passage trimmed to nothing is dropped. The best passage is cut but never dropped.
func (s *Service) fit(question string, passages []passage) []passage {
	if s.cfg.TokenBudget <= 0 || len(passages) == 0 {
		return passages
	}
	for i := len(passages) - 1; i >= 0; i-- {
		over := s.count(systemPrompt(passages)) + s.count(question) - s.cfg.TokenBudget
		if over <= 0 {
			return passages
		}
		toks := s.tokenizer.Encode(passages[i].text)
		keep := len(toks) - over
		if keep <= 0 && i > 0 {
			passages = passages[:i]
			continue
		}
		passages[i].text = s.tokenizer.Decode(toks[:max(keep, 0)])
	}
	if over := s.count(systemPrompt(passages)) + s.count(question) - s.cfg.TokenBudget; over > 0 {
		s.logger.Warn("Prompt exceeds token budget", zap.Int("over", over))
	}
	return passages
}

func (s *Service) count(text string) int {
	return len(s.tokenizer.Encode(text))
}
