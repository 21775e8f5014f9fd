package vector

import "testing"

func TestEq_RejectsUnknownField(t *testing.T) {
	if _, err := Eq("text", 1); err == nil {
		t.Fatal("expected error for non-filterable field")
	}
	c, err := Eq(FieldModelID, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Key() != FieldModelID || c.Text() != "9" {
		t.Errorf("unexpected condition %s=%s", c.Key(), c.Text())
	}
}

func TestNewFilter_TooMany(t *testing.T) {
	c, _ := Eq(FieldDocID, 1)
	conds := make([]Condition, MaxConditions+1)
	for i := range conds {
		conds[i] = c
	}
	if _, err := NewFilter(conds...); err == nil {
		t.Fatal("expected error")
	}
}

func TestTenantFilter(t *testing.T) {
	tests := []struct {
		name    string
		modelID int64
		meta    Metadata
		want    bool
	}{
		{"same producer no model filter", 0, Metadata{ProducerID: 1, ModelID: 4}, true},
		{"other producer", 0, Metadata{ProducerID: 2}, false},
		{"model match", 4, Metadata{ProducerID: 1, ModelID: 4}, true},
		{"model mismatch", 4, Metadata{ProducerID: 1, ModelID: 5}, false},
		{"model filter on untagged doc", 4, Metadata{ProducerID: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := TenantFilter(1, tt.modelID)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := f.Matches(tt.meta); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSelector_Validate(t *testing.T) {
	f, _ := TenantFilter(1, 0)
	if err := (Selector{}).Validate(); err == nil {
		t.Error("empty selector must be rejected")
	}
	if err := (Selector{IDs: []string{"a"}, Filter: f}).Validate(); err == nil {
		t.Error("ambiguous selector must be rejected")
	}
	if err := ByIDs("a").Validate(); err != nil {
		t.Errorf("ids selector: %v", err)
	}
	if err := ByFilter(f).Validate(); err != nil {
		t.Errorf("filter selector: %v", err)
	}
}

func TestSelector_Matches(t *testing.T) {
	docFilter, _ := Eq(FieldDocID, 12)
	f, _ := NewFilter(docFilter)

	if !ByIDs("doc_12_chunk_0").Matches("doc_12_chunk_0", Metadata{}) {
		t.Error("id selector should match")
	}
	if ByIDs("doc_12_chunk_0").Matches("doc_12_chunk_1", Metadata{DocID: 12}) {
		t.Error("id selector must ignore metadata")
	}
	if !ByFilter(f).Matches("x", Metadata{DocID: 12}) {
		t.Error("filter selector should match")
	}
}

func TestQuery_Validate(t *testing.T) {
	ok := Query{Namespace: "producer_1", Vector: []float32{1}, TopK: 5}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, q := range []Query{
		{Vector: []float32{1}, TopK: 5},
		{Namespace: "producer_1", TopK: 5},
		{Namespace: "producer_1", Vector: []float32{1}},
	} {
		if err := q.Validate(); err == nil {
			t.Errorf("expected error for %+v", q)
		}
	}
}
