package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "idempotency:"

// saveScript writes the completed record unless another fingerprint holds the key.
var saveScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current then
  local record = cjson.decode(current)
  if record['fingerprint'] ~= ARGV[1] then
    return 0
  end
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// releaseScript deletes the key only while it is held by the given fingerprint.
var releaseScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if not current then
  return 0
end
if cjson.decode(current)['fingerprint'] ~= ARGV[1] then
  return 0
end
return redis.call('DEL', KEYS[1])
`)

// RedisOption customises the RedisStore behaviour.
type RedisOption func(*RedisStore)

// WithKeyPrefix overrides the namespace prepended to every key.
func WithKeyPrefix(prefix string) RedisOption {
	return func(store *RedisStore) {
		if prefix != "" {
			store.prefix = prefix
		}
	}
}

// RedisStore implements Store on Redis. Expiry is delegated to key TTLs.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore constructs a Redis-backed idempotency store.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	store := &RedisStore{client: client, prefix: defaultRedisPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

// Reserve claims the key with SET NX, falling back to the stored record when it already exists.
func (s *RedisStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	redisKey := s.key(key)
	record := pendingRecord(key, fingerprint, now, ttl)
	payload, err := json.Marshal(record)
	if err != nil {
		return Reservation{}, fmt.Errorf("idempotency: encode record: %w", err)
	}

	// The stored key may expire between SETNX and GET; one retry covers that window.
	for attempt := 0; attempt < 2; attempt++ {
		claimed, err := s.client.SetNX(ctx, redisKey, payload, ttl).Result()
		if err != nil {
			return Reservation{}, err
		}
		if claimed {
			return Reservation{State: ReservationStateNew, Record: record}, nil
		}
		stored, found, err := s.load(ctx, redisKey)
		if err != nil {
			return Reservation{}, err
		}
		if found {
			return evaluate(stored, fingerprint)
		}
	}
	return Reservation{}, errors.New("idempotency: unable to reserve key")
}

// SaveResponse stores the completed response under the key with a fresh TTL.
func (s *RedisStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	redisKey := s.key(key)
	stored, found, err := s.load(ctx, redisKey)
	if err != nil {
		return err
	}
	record, err := complete(stored, found, key, fingerprint, resp, now, ttl)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("idempotency: encode record: %w", err)
	}
	written, err := saveScript.Run(ctx, s.client, []string{redisKey}, fingerprint, payload, ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if written == 0 {
		return ErrFingerprintMismatch
	}
	return nil
}

// Release removes the reservation to allow callers to retry.
func (s *RedisStore) Release(ctx context.Context, key, fingerprint string) error {
	return releaseScript.Run(ctx, s.client, []string{s.key(key)}, fingerprint).Err()
}

// CleanupExpired is a no-op; Redis evicts expired keys itself.
func (s *RedisStore) CleanupExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

func (s *RedisStore) key(key string) string {
	return s.prefix + storageKey(key)
}

func (s *RedisStore) load(ctx context.Context, redisKey string) (Record, bool, error) {
	raw, err := s.client.Get(ctx, redisKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return Record{}, false, fmt.Errorf("idempotency: decode record: %w", err)
	}
	return record, true, nil
}
