package redis

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/machinegpt/internal/db"
)

const (
	scoreField         = "__vector_score"
	defaultVectorField = "vector"
)

// SearchKNN runs a KNN vector similarity search via FT.SEARCH with TAG pre-filtering.
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	switch {
	case q.IndexName == "":
		return nil, fmt.Errorf("index name is required")
	case len(q.Vector) == 0:
		return nil, fmt.Errorf("vector is required")
	case q.K <= 0:
		return nil, fmt.Errorf("k must be positive")
	}

	args := []string{q.IndexName, knnQuery(q)}
	if len(q.ReturnFields) > 0 {
		args = append(args, "RETURN", strconv.Itoa(len(q.ReturnFields)+1))
		args = append(args, q.ReturnFields...)
		args = append(args, scoreField)
	}
	args = append(args, "SORTBY", scoreField, "LIMIT", "0", strconv.Itoa(q.K))
	if q.EFRuntime > 0 {
		args = append(args, "PARAMS", "4", "BLOB", vectorToBytes(q.Vector), "EF", strconv.Itoa(q.EFRuntime))
	} else {
		args = append(args, "PARAMS", "2", "BLOB", vectorToBytes(q.Vector))
	}
	args = append(args, "DIALECT", "2")

	raw, err := s.do(ctx, s.b().Arbitrary("FT.SEARCH").Args(args...).Build()).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}
	return parseKNNResult(raw)
}

// knnQuery renders "(filter)=>[KNN k @field $BLOB [EF_RUNTIME $EF]]".
func knnQuery(q *db.KNNQuery) string {
	field := q.VectorField
	if field == "" {
		field = defaultVectorField
	}

	var b strings.Builder
	if filter := buildFilter(q.Tags); filter != "" {
		b.WriteString("(" + filter + ")")
	} else {
		b.WriteString("*")
	}
	fmt.Fprintf(&b, "=>[KNN %d @%s $BLOB", q.K, field)
	if q.EFRuntime > 0 {
		b.WriteString(" EF_RUNTIME $EF")
	}
	b.WriteString("]")
	return b.String()
}

// SearchKeys lists up to limit keys matching all tags (FT.SEARCH NOCONTENT).
func (s *Store) SearchKeys(ctx context.Context, index string, tags []db.TagMatch, limit int) ([]string, error) {
	if index == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if len(tags) == 0 {
		return nil, fmt.Errorf("at least one tag is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}

	cmd := s.b().Arbitrary("FT.SEARCH").Args(
		index, buildFilter(tags), "NOCONTENT", "LIMIT", "0", strconv.Itoa(limit), "DIALECT", "2",
	).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}
	if len(raw) <= 1 {
		return nil, nil
	}

	keys := make([]string, 0, len(raw)-1)
	for _, m := range raw[1:] {
		k, err := m.ToString()
		if err != nil {
			return nil, fmt.Errorf("parse key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// --- Result parsing ---

func parseKNNResult(raw []rueidis.RedisMessage) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return &db.SearchResult{}, nil
	}

	entries := make([]db.SearchEntry, 0, total)
	// 2-stride: [total, key1, fields1, key2, fields2, ...]
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		entry := db.SearchEntry{Key: key, Fields: parseFieldPairs(fields)}
		if raw, ok := entry.Fields[scoreField]; ok {
			if d, err := strconv.ParseFloat(raw, 64); err == nil {
				// cosine distance in [0, 2]
				entry.Score = min(1, max(0, 1-d))
			}
			delete(entry.Fields, scoreField)
		}
		entries = append(entries, entry)
	}

	return &db.SearchResult{Total: int(total), Entries: entries}, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// --- Filter building ---

// buildFilter joins TAG clauses into an implicit AND.
func buildFilter(tags []db.TagMatch) string {
	parts := make([]string, 0, len(tags))
	for _, t := range tags {
		parts = append(parts, fmt.Sprintf("@%s:{%s}", t.Key, tagEscaper.Replace(t.Value)))
	}
	return strings.Join(parts, " ")
}

var tagEscaper = strings.NewReplacer(
	",", "\\,",
	".", "\\.",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	"|", "\\|",
	" ", "\\ ",
)

// vectorToBytes encodes a FLOAT32 vector blob (little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
