package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestCompareAndDeleteRespectsOwner(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	ok, err := client.SetNX(ctx, "ps:lock:gig:1", "owner-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first setnx to win, ok=%v err=%v", ok, err)
	}
	ok, err = client.SetNX(ctx, "ps:lock:gig:1", "owner-b", time.Minute)
	if err != nil || ok {
		t.Fatalf("expected second setnx to lose, ok=%v err=%v", ok, err)
	}

	deleted, err := client.CompareAndDelete(ctx, "ps:lock:gig:1", "owner-b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted {
		t.Fatalf("non-owner must not release the lock")
	}

	deleted, err = client.CompareAndDelete(ctx, "ps:lock:gig:1", "owner-a")
	if err != nil || !deleted {
		t.Fatalf("owner release failed deleted=%v err=%v", deleted, err)
	}
	if _, err := client.Get(ctx, "ps:lock:gig:1"); err != redis.Nil {
		t.Fatalf("expected redis.Nil after release, got %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("gigs.pay", "abc"); got != "ps:idempotency:gigs.pay:abc" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.GigLockKey(42); got != "ps:lock:gig:42" {
		t.Fatalf("unexpected gig lock key %s", got)
	}
	if got := client.CronLockKey(""); got != "ps:lock:cron" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
}

func TestIncrWithTTLSetsExpiryOnce(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := client.RateLimitKey("gigs", "client-a")
	if key != "ps:rl:gigs:client-a" {
		t.Fatalf("unexpected rate limit key %s", key)
	}

	for i := int64(1); i <= 3; i++ {
		n, err := client.IncrWithTTL(ctx, key, time.Minute)
		if err != nil {
			t.Fatalf("incr: %v", err)
		}
		if n != i {
			t.Fatalf("expected count %d, got %d", i, n)
		}
		if i == 1 {
			delete(mock.ttls, key)
		}
	}
	if _, ok := mock.ttls[key]; ok {
		t.Fatalf("expiry must only be set on the first increment")
	}
}

func TestUninitializedClientErrors(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatalf("expected error from nil store")
	}
	if _, err := client.CompareAndDelete(context.Background(), "k", "v"); err == nil {
		t.Fatalf("expected error from nil store")
	}
}

type mockCmdable struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (m *mockCmdable) Incr(ctx context.Context, key string) *redis.IntCmd {
	var n int64
	_, _ = fmt.Sscan(m.data[key], &n)
	n++
	m.data[key] = fmt.Sprint(n)
	return redis.NewIntResult(n, nil)
}

func (m *mockCmdable) Expire(ctx context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	m.ttls[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

// Eval only understands the compare-and-delete script.
func (m *mockCmdable) Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	if script != compareAndDeleteScript || len(keys) != 1 || len(args) != 1 {
		return redis.NewCmdResult(nil, fmt.Errorf("unexpected eval"))
	}
	if m.data[keys[0]] == fmt.Sprint(args[0]) {
		delete(m.data, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}
