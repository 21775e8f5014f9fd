package redis

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/kailas-cloud/machinegpt/internal/domain/vector"
)

// Hash field names. Tag fields are duplicated out of the metadata blob so FT can pre-filter on them.
const (
	fieldNamespace = "namespace"
	fieldPage      = "page"
	fieldVector    = "vector"
	fieldMeta      = "meta"
)

// buildHashFields flattens a record into HSET fields.
func buildHashFields(namespace string, r vector.Record) (map[string]string, error) {
	meta, err := json.Marshal(r.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata %s: %w", r.ID, err)
	}
	return map[string]string{
		fieldNamespace:         namespace,
		vector.FieldProducerID: strconv.FormatInt(r.Metadata.ProducerID, 10),
		vector.FieldModelID:    strconv.FormatInt(r.Metadata.ModelID, 10),
		vector.FieldDocID:      strconv.FormatInt(r.Metadata.DocID, 10),
		fieldPage:              strconv.Itoa(r.Metadata.Page),
		fieldVector:            vectorToBytes(r.Values),
		fieldMeta:              string(meta),
	}, nil
}

// parseMeta decodes the metadata blob returned by FT.SEARCH.
func parseMeta(fields map[string]string) (vector.Metadata, error) {
	var m vector.Metadata
	raw, ok := fields[fieldMeta]
	if !ok {
		return m, fmt.Errorf("metadata field missing")
	}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return m, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return m, nil
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
