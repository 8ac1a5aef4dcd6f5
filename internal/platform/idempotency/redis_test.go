package idempotency

import (
	"context"
	"errors"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// newTestRedisStore connects to the server named by IDEMPOTENCY_REDIS_ADDR.
func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	addr := os.Getenv("IDEMPOTENCY_REDIS_ADDR")
	if addr == "" {
		t.Skip("IDEMPOTENCY_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	return NewRedisStore(client, WithKeyPrefix("idempotency-test:"+t.Name()+":"))
}

func TestRedisStoreLifecycle(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()
	key := "key-" + time.Now().Format(time.RFC3339Nano)
	t.Cleanup(func() { _ = store.Release(ctx, key, "fp-1") })

	res, err := store.Reserve(ctx, key, "fp-1", fixedTime, time.Minute)
	if err != nil || res.State != ReservationStateNew {
		t.Fatalf("expected new reservation, got %+v %v", res, err)
	}
	res, err = store.Reserve(ctx, key, "fp-1", fixedTime, time.Minute)
	if err != nil || res.State != ReservationStatePending {
		t.Fatalf("expected pending reservation, got %+v %v", res, err)
	}
	if _, err := store.Reserve(ctx, key, "fp-2", fixedTime, time.Minute); !errors.Is(err, ErrFingerprintMismatch) {
		t.Fatalf("expected fingerprint mismatch, got %v", err)
	}
	if err := store.SaveResponse(ctx, key, "fp-2", Response{Status: http.StatusCreated}, fixedTime, time.Minute); !errors.Is(err, ErrFingerprintMismatch) {
		t.Fatalf("expected save mismatch, got %v", err)
	}

	resp := Response{Status: http.StatusCreated, Headers: http.Header{"Content-Type": {"application/json"}}, Body: []byte(`{"id":"ord_1"}`)}
	if err := store.SaveResponse(ctx, key, "fp-1", resp, fixedTime, time.Minute); err != nil {
		t.Fatalf("SaveResponse: %v", err)
	}
	res, err = store.Reserve(ctx, key, "fp-1", fixedTime, time.Minute)
	if err != nil || res.State != ReservationStateCompleted {
		t.Fatalf("expected completed reservation, got %+v %v", res, err)
	}
	if res.Record.ResponseStatus != http.StatusCreated || string(res.Record.ResponseBody) != `{"id":"ord_1"}` {
		t.Fatalf("unexpected stored record %+v", res.Record)
	}

	if err := store.Release(ctx, key, "fp-2"); err != nil {
		t.Fatalf("Release other fingerprint: %v", err)
	}
	if res, _ := store.Reserve(ctx, key, "fp-1", fixedTime, time.Minute); res.State != ReservationStateCompleted {
		t.Fatalf("release by another fingerprint must not delete the record")
	}
	if err := store.Release(ctx, key, "fp-1"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if res, _ := store.Reserve(ctx, key, "fp-1", fixedTime, time.Minute); res.State != ReservationStateNew {
		t.Fatalf("expected key to be reusable after release, got %+v", res)
	}
}
