// Package challenge implements the ephemeral one-time-code lifecycle: a
// TTL-bound key-value store holding pending codes and the engine that issues
// and verifies them. Codes are single-use; verification consumes the entry
// atomically so a code can never be redeemed twice.
package challenge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned when no live entry exists for the key: never
	// issued, already consumed, or past its TTL. The three cases are
	// indistinguishable on purpose.
	ErrNotFound = errors.New("challenge not found or expired")
	// ErrMismatch is returned when an entry exists but the candidate code
	// differs from the stored one. The entry is retained so the caller may
	// retry until expiry.
	ErrMismatch = errors.New("challenge code mismatch")
	// ErrUnavailable is returned when the backing store cannot be reached.
	// Distinct from ErrNotFound: callers must surface it as an
	// infrastructure failure, not as an invalid code.
	ErrUnavailable = errors.New("challenge store unavailable")
)

// Record is the stored value for a pending challenge. The otp field name is
// the wire contract; IssuedAt is informational.
type Record struct {
	Code     string `json:"otp"`
	IssuedAt int64  `json:"iat,omitempty"`
}

// Store is a key-value store with per-key TTL. Put replaces any existing
// entry for the key. Get never returns an expired entry. Delete is
// idempotent. Consume is the atomic compare-and-delete primitive backing
// single-use verification: it deletes the entry only when the candidate code
// matches exactly, and leaves it in place on mismatch.
type Store interface {
	Put(ctx context.Context, key string, rec Record, ttl time.Duration) error
	Get(ctx context.Context, key string) (Record, error)
	Delete(ctx context.Context, key string) error
	Consume(ctx context.Context, key, code string) error
}

// consumeScript performs GET, compare, DEL in a single server-side step so
// concurrent submissions of the same code cannot both succeed. A record that
// fails to decode is treated as absent and removed.
var consumeScript = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end
local ok, rec = pcall(cjson.decode, data)
if not ok or type(rec) ~= 'table' or type(rec.otp) ~= 'string' then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end
if rec.otp ~= ARGV[1] then
  return {err='mismatch'}
end
redis.call('DEL', KEYS[1])
return 1
`)

// RedisStore implements Store on a redis client. Expiry is delegated to
// redis key TTLs.
type RedisStore struct {
	rdb redis.UniversalClient
}

// NewRedisStore wraps an already-connected client.
func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Put(ctx context.Context, key string, rec Record, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (Record, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Consume(ctx context.Context, key, code string) error {
	err := consumeScript.Run(ctx, s.rdb, []string{key}, code).Err()
	if err == nil {
		return nil
	}
	switch err.Error() {
	case "not_found":
		return ErrNotFound
	case "mismatch":
		return ErrMismatch
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}
