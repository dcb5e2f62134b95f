package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

// newTestRedisCache starts a miniredis server and returns a RedisCache backed
// by it.
func newTestRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	c, err := NewRedisCacheFromURL(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("NewRedisCacheFromURL: %v", err)
	}

	t.Cleanup(func() { _ = c.Close() })

	return c, mr
}

func TestRedisGetMiss(t *testing.T) {
	c, _ := newTestRedisCache(t)

	data, ok := c.Get(context.Background(), "nonexistent-key")
	if ok {
		t.Fatal("expected cache miss, got hit")
	}
	if data != nil {
		t.Fatalf("expected nil data on miss, got %v", data)
	}
}

func TestRedisSetAndGetHit(t *testing.T) {
	c, _ := newTestRedisCache(t)

	key := Keyer{}.Fingerprint("", "why is my site slow?")
	want := []byte(`{"text":"check your plugins"}`)

	if err := c.Set(context.Background(), key, want, time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok := c.Get(context.Background(), key)
	if !ok {
		t.Fatal("expected cache hit, got miss")
	}
	if string(got) != string(want) {
		t.Fatalf("Get returned %q, want %q", got, want)
	}
}

// TestRedisTTLExpiry advances miniredis time past the TTL and confirms the
// entry is treated as absent.
func TestRedisTTLExpiry(t *testing.T) {
	c, mr := newTestRedisCache(t)

	key := "ttl-key"
	ttl := 10 * time.Second

	if err := c.Set(context.Background(), key, []byte("payload"), ttl); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if _, ok := c.Get(context.Background(), key); !ok {
		t.Fatal("key should exist before TTL expires")
	}

	mr.FastForward(ttl + time.Second)

	if _, ok := c.Get(context.Background(), key); ok {
		t.Fatal("key should have expired after TTL")
	}
}

func TestMemoryExpiry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewMemoryCache(ctx)
	defer c.Close()

	key := "expiring"
	if err := c.Set(ctx, key, []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok := c.Get(ctx, key); !ok {
		t.Fatal("expected hit before expiry")
	}

	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get(ctx, key); ok {
		t.Fatal("expected miss after expiry")
	}
	if c.Len() != 0 {
		t.Errorf("lazy eviction should have removed the entry, Len = %d", c.Len())
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	k := Keyer{}

	a := k.Fingerprint("groq", "hello world")
	b := k.Fingerprint("perplexity", "hello world")
	if a != b {
		t.Error("unscoped keys must ignore the provider")
	}
	if a != k.Fingerprint("", "  hello world  ") {
		t.Error("fingerprint must normalize surrounding whitespace")
	}
	if a == k.Fingerprint("", "hello there") {
		t.Error("different prompts must map to different keys")
	}
}

func TestFingerprintProviderScoped(t *testing.T) {
	k := Keyer{ScopeProvider: true}

	a := k.Fingerprint("groq", "hello world")
	b := k.Fingerprint("perplexity", "hello world")
	if a == b {
		t.Error("provider-scoped keys must differ across providers")
	}
	if a != k.Fingerprint("groq", "hello world") {
		t.Error("scoped fingerprint must stay deterministic")
	}
}
