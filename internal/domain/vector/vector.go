// Package vector defines what is stored in and returned from the vector store.
package vector

import (
	"fmt"

	"github.com/kailas-cloud/machinegpt/internal/domain/document"
)

// Metadata travels with every vector and is returned verbatim on match.
type Metadata struct {
	Text       string           `json:"text"`
	DocID      int64            `json:"doc_id"`
	DocName    string           `json:"doc_name"`
	Page       int              `json:"page"`
	ProducerID int64            `json:"producer_id"`
	ModelID    int64            `json:"model_id,omitempty"`
	HasImages  bool             `json:"has_images"`
	Images     []document.Image `json:"images,omitempty"`
}

func (m Metadata) field(key string) int64 {
	switch key {
	case FieldProducerID:
		return m.ProducerID
	case FieldModelID:
		return m.ModelID
	case FieldDocID:
		return m.DocID
	}
	return 0
}

// Record is one vector to upsert.
type Record struct {
	ID       string
	Values   []float32
	Metadata Metadata
}

// Match is one search hit. Score is cosine similarity in [0, 1].
type Match struct {
	ID       string
	Score    float64
	Metadata Metadata
}

// Query is a namespace-scoped nearest-neighbour search.
type Query struct {
	Namespace string
	Vector    []float32
	TopK      int
	Filter    Filter
}

// Validate rejects queries that could escape their namespace.
func (q Query) Validate() error {
	if q.Namespace == "" {
		return fmt.Errorf("namespace is required")
	}
	if len(q.Vector) == 0 {
		return fmt.Errorf("query vector is required")
	}
	if q.TopK <= 0 {
		return fmt.Errorf("top_k must be positive")
	}
	return nil
}

// Selector picks vectors to delete: explicit ids or a filter, never both.
type Selector struct {
	IDs    []string
	Filter Filter
}

// ByIDs selects vectors by id.
func ByIDs(ids ...string) Selector { return Selector{IDs: ids} }

// ByFilter selects vectors matching f.
func ByFilter(f Filter) Selector { return Selector{Filter: f} }

// Validate rejects empty and ambiguous selectors. An empty filter would wipe the namespace.
func (s Selector) Validate() error {
	hasIDs := len(s.IDs) > 0
	hasFilter := !s.Filter.IsEmpty()
	if hasIDs == hasFilter {
		return fmt.Errorf("selector needs exactly one of ids or filter")
	}
	return nil
}

// Matches reports whether a stored vector falls under the selector.
func (s Selector) Matches(id string, m Metadata) bool {
	if len(s.IDs) > 0 {
		for _, want := range s.IDs {
			if want == id {
				return true
			}
		}
		return false
	}
	return s.Filter.Matches(m)
}
