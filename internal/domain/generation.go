package domain

import "context"

// Prompt is one single-turn chat request: a system prompt and the operator's question.
type Prompt struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// Completion is the provider reply with its token usage.
type Completion struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Generator is a chat completion backend.
type Generator interface {
	Name() string
	Model() string
	Complete(ctx context.Context, p Prompt) (Completion, error)
}
