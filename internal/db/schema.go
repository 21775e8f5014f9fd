package db

import (
	"errors"
	"fmt"
)

// FieldKind is the FT type of an indexed hash field.
type FieldKind int

const (
	// FieldTag is an exact-match TAG field (tenant namespace, ids).
	FieldTag FieldKind = iota + 1
	// FieldNumeric is a NUMERIC field (page numbers).
	FieldNumeric
	// FieldVector is an HNSW FLOAT32 vector field compared by cosine distance.
	FieldVector
)

// SchemaField is one indexed hash field.
type SchemaField struct {
	Name string
	Kind FieldKind
}

// HNSW holds the graph parameters of the vector field. Zero values keep server defaults.
type HNSW struct {
	Dim            int
	M              int
	EFConstruction int
}

// Schema is an FT index over hashes under Prefix with at most one vector field.
type Schema struct {
	Name   string
	Prefix string
	Fields []SchemaField
	Vector HNSW
}

// NewVectorSchema describes the index layout used for chunk vectors:
// TAG filters, then NUMERIC fields, then the vector field.
func NewVectorSchema(name, prefix string, tags, numerics []string, vectorField string, hnsw HNSW) (*Schema, error) {
	s := &Schema{Name: name, Prefix: prefix, Vector: hnsw}
	for _, t := range tags {
		s.Fields = append(s.Fields, SchemaField{Name: t, Kind: FieldTag})
	}
	for _, n := range numerics {
		s.Fields = append(s.Fields, SchemaField{Name: n, Kind: FieldNumeric})
	}
	s.Fields = append(s.Fields, SchemaField{Name: vectorField, Kind: FieldVector})
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the schema is well-formed.
func (s *Schema) Validate() error {
	if s.Name == "" {
		return errors.New("index name is required")
	}
	if !isIdentifier(s.Name) {
		return fmt.Errorf("index name %q contains invalid characters", s.Name)
	}
	if len(s.Fields) == 0 {
		return errors.New("at least one field is required")
	}

	seen := make(map[string]bool, len(s.Fields))
	vectors := 0
	for i, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("field %d: name is required", i)
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate field name: %s", f.Name)
		}
		seen[f.Name] = true
		if f.Kind == FieldVector {
			vectors++
		}
	}
	switch {
	case vectors > 1:
		return errors.New("at most one vector field is supported")
	case vectors == 1 && s.Vector.Dim <= 0:
		return errors.New("vector field requires a positive dimension")
	}
	return nil
}

// isIdentifier reports whether s matches [a-zA-Z0-9_:-]+.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_', r == ':', r == '-':
		default:
			return false
		}
	}
	return true
}
