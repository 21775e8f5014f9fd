package vector

import (
	"fmt"
	"strconv"
)

// Filterable metadata fields. Everything else in Metadata is payload only.
const (
	FieldProducerID = "producer_id"
	FieldModelID    = "model_id"
	FieldDocID      = "doc_id"
)

// MaxConditions caps the number of conditions in one filter.
const MaxConditions = 8

var filterable = map[string]bool{FieldProducerID: true, FieldModelID: true, FieldDocID: true}

// Condition is an exact match of an integer metadata field.
type Condition struct {
	key   string
	value int64
}

// Eq creates an equality condition on a filterable field.
func Eq(key string, value int64) (Condition, error) {
	if !filterable[key] {
		return Condition{}, fmt.Errorf("field %q is not filterable", key)
	}
	return Condition{key: key, value: value}, nil
}

// Key returns the field name.
func (c Condition) Key() string { return c.key }

// Value returns the expected value.
func (c Condition) Value() int64 { return c.value }

// Text returns the value as stored in TAG fields.
func (c Condition) Text() string { return strconv.FormatInt(c.value, 10) }

// Filter is a conjunction of conditions. The zero Filter matches everything.
type Filter struct {
	must []Condition
}

// NewFilter validates and creates a Filter.
func NewFilter(must ...Condition) (Filter, error) {
	if len(must) > MaxConditions {
		return Filter{}, fmt.Errorf("too many filter conditions (max %d)", MaxConditions)
	}
	for _, c := range must {
		if c.key == "" {
			return Filter{}, fmt.Errorf("filter condition without key")
		}
	}
	return Filter{must: append([]Condition(nil), must...)}, nil
}

// Must returns the conditions.
func (f Filter) Must() []Condition { return f.must }

// IsEmpty reports whether the filter has no conditions.
func (f Filter) IsEmpty() bool { return len(f.must) == 0 }

// Matches evaluates the filter against metadata.
func (f Filter) Matches(m Metadata) bool {
	for _, c := range f.must {
		if m.field(c.key) != c.value {
			return false
		}
	}
	return true
}

// TenantFilter restricts a search to producerID and, when modelID > 0, to one machine model.
func TenantFilter(producerID, modelID int64) (Filter, error) {
	p, err := Eq(FieldProducerID, producerID)
	if err != nil {
		return Filter{}, err
	}
	if modelID <= 0 {
		return NewFilter(p)
	}
	m, err := Eq(FieldModelID, modelID)
	if err != nil {
		return Filter{}, err
	}
	return NewFilter(p, m)
}
