package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/machinegpt/internal/db"
)

// releaseScript removes KEYS[1] only while it holds ARGV[1].
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`

// renewScript sets a PX TTL of ARGV[2] on KEYS[1] only while it holds ARGV[1].
const renewScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("PEXPIRE", KEYS[1], ARGV[2]) else return 0 end`

// Get returns the value at key or ErrKeyNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.do(ctx, s.b().Get().Key(key).Build()).AsBytes()
	switch {
	case rueidis.IsRedisNil(err):
		return nil, db.ErrKeyNotFound
	case err != nil:
		return nil, &db.Error{Op: db.OpGet, Err: err}
	}
	return data, nil
}

// SetWithTTL stores value at key, expiring after ttl (second precision).
func (s *Store) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	cmd := s.b().Set().Key(key).Value(rueidis.BinaryString(value)).Ex(ttl).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpSet, Err: err}
	}
	return nil
}

// SetNX stores value with a millisecond TTL only if key is absent (SET NX PX).
func (s *Store) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	cmd := s.b().Arbitrary("SET").Keys(key).
		Args(value, "NX", "PX", strconv.FormatInt(ttl.Milliseconds(), 10)).Build()
	err := s.do(ctx, cmd).Error()
	switch {
	case rueidis.IsRedisNil(err):
		return false, nil
	case err != nil:
		return false, &db.Error{Op: db.OpSetNX, Err: err}
	}
	return true, nil
}

// CompareAndDelete deletes key only if it still holds value.
func (s *Store) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	cmd := s.b().Arbitrary("EVAL").Args(releaseScript, "1").Keys(key).Args(value).Build()
	n, err := s.do(ctx, cmd).AsInt64()
	if err != nil {
		return false, &db.Error{Op: db.OpEval, Err: err}
	}
	return n == 1, nil
}

// CompareAndExpire resets the millisecond TTL of key only if it still holds value.
func (s *Store) CompareAndExpire(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	cmd := s.b().Arbitrary("EVAL").Args(renewScript, "1").Keys(key).
		Args(value, strconv.FormatInt(ttl.Milliseconds(), 10)).Build()
	n, err := s.do(ctx, cmd).AsInt64()
	if err != nil {
		return false, &db.Error{Op: db.OpEval, Err: err}
	}
	return n == 1, nil
}
