// Package compose turns generation output and retrieved matches into the operator-facing answer.
package compose

import (
	"strings"

	"github.com/kailas-cloud/machinegpt/internal/domain"
	"github.com/kailas-cloud/machinegpt/internal/domain/answer"
	"github.com/kailas-cloud/machinegpt/internal/domain/vector"
)

var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {},
	"in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "of": {},
	"with": {}, "is": {}, "are": {}, "was": {}, "were": {},
}

// Config caps the cited sources and returned images.
type Config struct {
	MaxSources int
	MaxImages  int
}

// DefaultConfig returns 3 sources and 3 images.
func DefaultConfig() Config {
	return Config{MaxSources: domain.DefaultContextLimit, MaxImages: domain.DefaultMaxImages}
}

// Composer assembles answer payloads. It holds no state beyond its config.
type Composer struct {
	cfg Config
}

// New creates a Composer. Non-positive caps fall back to the defaults.
func New(cfg Config) *Composer {
	def := DefaultConfig()
	if cfg.MaxSources <= 0 {
		cfg.MaxSources = def.MaxSources
	}
	if cfg.MaxImages <= 0 {
		cfg.MaxImages = def.MaxImages
	}
	return &Composer{cfg: cfg}
}

// Sources cites the matches used for generation in prompt order, scores rounded to 2 decimals.
func (c *Composer) Sources(used []vector.Match) []answer.Source {
	n := min(len(used), c.cfg.MaxSources)
	out := make([]answer.Source, n)
	for i, m := range used[:n] {
		out[i] = answer.Source{
			DocID:   m.Metadata.DocID,
			DocName: m.Metadata.DocName,
			Page:    m.Metadata.Page,
			Score:   answer.RoundScore(m.Score),
		}
	}
	return out
}

// Images collects the images of every surviving match, keeps those whose caption
// shares at least one keyword with the question, dedupes by URL in first-seen
// order and caps the list.
func (c *Composer) Images(question string, matches []vector.Match) []answer.RankedImage {
	q := keywords(question)
	seen := make(map[string]struct{})
	var out []answer.RankedImage
	for _, m := range matches {
		if !m.Metadata.HasImages {
			continue
		}
		for _, img := range m.Metadata.Images {
			rel := relevance(q, img.Caption)
			if rel == answer.RelevanceLow {
				continue
			}
			if _, dup := seen[img.URL]; dup {
				continue
			}
			seen[img.URL] = struct{}{}
			out = append(out, answer.RankedImage{
				URL:       img.URL,
				Caption:   img.Caption,
				Page:      img.Page,
				Relevance: rel,
			})
			if len(out) == c.cfg.MaxImages {
				return out
			}
		}
	}
	return out
}

// Relevance classifies caption against the question: two or more shared
// keywords is high, one is medium, none is low.
func Relevance(question, caption string) answer.Relevance {
	return relevance(keywords(question), caption)
}

func relevance(questionWords map[string]struct{}, caption string) answer.Relevance {
	overlap := 0
	for w := range keywords(caption) {
		if _, ok := questionWords[w]; ok {
			overlap++
		}
	}
	switch {
	case overlap >= 2:
		return answer.RelevanceHigh
	case overlap == 1:
		return answer.RelevanceMedium
	}
	return answer.RelevanceLow
}

// keywords is the lowercase whitespace-separated word set of s without stopwords.
func keywords(s string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(s))
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, stop := stopwords[w]; stop {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

// Answered builds the result of a successful generation.
func (c *Composer) Answered(question, text string, used, matches []vector.Match, tokens answer.Tokens) answer.Result {
	return answer.Result{
		Outcome: answer.OutcomeAnswered,
		Answer:  text,
		Sources: c.Sources(used),
		Images:  c.Images(question, matches),
		Tokens:  tokens,
	}
}

// NoContent builds the result of a query nothing relevant was found for.
func NoContent() answer.Result {
	return answer.Result{Outcome: answer.OutcomeNoContent, Answer: answer.NoContentMessage}
}

// ProviderFailure builds the result of a query that failed on a provider.
func ProviderFailure(reason string) answer.Result {
	return answer.Result{Outcome: answer.OutcomeProviderFailure, FailureReason: reason}
}
