// Package answer holds the result of a query.
package answer

import (
	"math"
	"time"
)

// Outcome tags how a query ended. Callers branch on it instead of on errors.
type Outcome string

const (
	// OutcomeAnswered means generation produced an answer from retrieved context.
	OutcomeAnswered Outcome = "answered"
	// OutcomeNoContent means nothing scored above the relevance threshold.
	OutcomeNoContent Outcome = "no_content"
	// OutcomeProviderFailure means embedding, search or generation failed.
	OutcomeProviderFailure Outcome = "provider_failure"
)

// NoContentMessage is returned to operators when the manuals have no relevant passage.
const NoContentMessage = "I couldn't find relevant information in the documentation. Please contact support."

// Relevance classifies how well an image matches the question.
type Relevance string

// Relevance classes. Low-relevance images are never returned.
const (
	RelevanceHigh   Relevance = "high"
	RelevanceMedium Relevance = "medium"
	RelevanceLow    Relevance = "low"
)

// Source cites one passage used for generation.
type Source struct {
	DocID   int64   `json:"doc_id"`
	DocName string  `json:"doc_name"`
	Page    int     `json:"page"`
	Score   float64 `json:"score"`
}

// RankedImage is an image surfaced with the answer.
type RankedImage struct {
	URL       string    `json:"url"`
	Caption   string    `json:"caption"`
	Page      int       `json:"page"`
	Relevance Relevance `json:"relevance"`
}

// Timings are wall-clock durations of the query phases.
type Timings struct {
	Retrieval  time.Duration
	Generation time.Duration
	Total      time.Duration
}

// Tokens is the generation usage.
type Tokens struct {
	Input  int
	Output int
}

// Result is the composed reply to an operator question.
type Result struct {
	Outcome       Outcome
	Answer        string
	Sources       []Source
	Images        []RankedImage
	Timings       Timings
	Tokens        Tokens
	FailureReason string
}

// HasImages reports whether any image survived relevance ranking.
func (r Result) HasImages() bool { return len(r.Images) > 0 }

// RoundScore rounds a similarity score to two decimals for display.
func RoundScore(s float64) float64 {
	return math.Round(s*100) / 100
}
