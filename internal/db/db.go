// Package db describes the key-value and FT search operations the service needs from Redis.
// Each consumer depends on the narrow role it uses; redis.Store implements all of them.
package db

import (
	"context"
	"time"
)

// KeyPrefix namespaces every key this service writes.
const KeyPrefix = "mgpt:"

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HashSetItem holds a single key+fields pair for pipelined HSET.
type HashSetItem struct {
	Key    string
	Fields map[string]string
}

// VectorIndex stores vector hashes and queries them through an FT index.
type VectorIndex interface {
	HSetMulti(ctx context.Context, items []HashSetItem) error
	DelMulti(ctx context.Context, keys ...string) (int, error)
	CreateIndex(ctx context.Context, schema *Schema) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *KNNQuery) (*SearchResult, error)
	SearchKeys(ctx context.Context, index string, tags []TagMatch, limit int) ([]string, error)
}

// Cache holds expiring binary values (embedding cache).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Locker provides token-guarded exclusive keys (ingestion leases).
type Locker interface {
	// SetNX stores value only if key is absent. Returns false when the key is held.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// CompareAndDelete removes key only while it still holds value.
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
	// CompareAndExpire resets the TTL of key only while it still holds value.
	CompareAndExpire(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
}
