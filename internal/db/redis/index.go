package redis

import (
	"context"
	"strconv"

	"github.com/kailas-cloud/machinegpt/internal/db"
)

// CreateIndex runs FT.CREATE for schema. An existing index yields ErrIndexExists.
func (s *Store) CreateIndex(ctx context.Context, schema *db.Schema) error {
	if err := schema.Validate(); err != nil {
		return err
	}

	cmd := s.b().Arbitrary("FT.CREATE").Args(createArgs(schema)...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "index already exists") {
			return db.ErrIndexExists
		}
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}
	return nil
}

// IndexExists checks the index with FT.INFO.
func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	if err := s.do(ctx, s.b().Arbitrary("FT.INFO").Args(name).Build()).Error(); err != nil {
		if isRedisErr(err, "unknown index name") || isRedisErr(err, "no such index") {
			return false, nil
		}
		return false, &db.Error{Op: db.OpIndexInfo, Err: err}
	}
	return true, nil
}

// createArgs renders "name ON HASH [PREFIX 1 p] SCHEMA field type ...".
func createArgs(s *db.Schema) []string {
	args := []string{s.Name, "ON", "HASH"}
	if s.Prefix != "" {
		args = append(args, "PREFIX", "1", s.Prefix)
	}
	args = append(args, "SCHEMA")

	for _, f := range s.Fields {
		switch f.Kind {
		case db.FieldTag:
			args = append(args, f.Name, "TAG", "CASESENSITIVE")
		case db.FieldNumeric:
			args = append(args, f.Name, "NUMERIC")
		case db.FieldVector:
			args = append(args, vectorArgs(f.Name, s.Vector)...)
		}
	}
	return args
}

func vectorArgs(name string, h db.HNSW) []string {
	attrs := []string{"TYPE", "FLOAT32", "DIM", strconv.Itoa(h.Dim), "DISTANCE_METRIC", "COSINE"}
	if h.M > 0 {
		attrs = append(attrs, "M", strconv.Itoa(h.M))
	}
	if h.EFConstruction > 0 {
		attrs = append(attrs, "EF_CONSTRUCTION", strconv.Itoa(h.EFConstruction))
	}
	return append([]string{name, "VECTOR", "HNSW", strconv.Itoa(len(attrs))}, attrs...)
}
