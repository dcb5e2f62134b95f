package store

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

// newTestRedisStore starts a miniredis server and returns a RedisStore backed
// by it. The server and client are cleaned up with the test.
func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()

	mr := miniredis.RunT(t)

	s, err := NewRedisStoreFromURL(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("NewRedisStoreFromURL: %v", err)
	}

	t.Cleanup(func() { _ = s.Close() })

	return s
}

// stores returns both backends so every contract test runs against each.
func stores(t *testing.T) map[string]Store {
	t.Helper()
	return map[string]Store{
		"redis":  newTestRedisStore(t),
		"memory": NewMemoryStore(),
	}
}

func TestGetMissing(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Get(context.Background(), "absent"); err != ErrNotFound {
				t.Errorf("Get(absent) error = %v, want ErrNotFound", err)
			}
			if got := s.GetDefault(context.Background(), "absent", "fallback"); got != "fallback" {
				t.Errorf("GetDefault(absent) = %q, want %q", got, "fallback")
			}
		})
	}
}

func TestSetGetDelete(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if err := s.Set(ctx, OptCredential, "gsk_test"); err != nil {
				t.Fatalf("Set: %v", err)
			}

			got, err := s.Get(ctx, OptCredential)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got != "gsk_test" {
				t.Errorf("Get = %q, want %q", got, "gsk_test")
			}

			if err := s.Delete(ctx, OptCredential); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := s.Get(ctx, OptCredential); err != ErrNotFound {
				t.Errorf("Get after Delete: error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestIncrFromZero(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			n, err := s.Incr(ctx, OptCallCount)
			if err != nil {
				t.Fatalf("Incr: %v", err)
			}
			if n != 1 {
				t.Errorf("first Incr = %d, want 1", n)
			}

			n, err = s.Incr(ctx, OptCallCount)
			if err != nil {
				t.Fatalf("Incr: %v", err)
			}
			if n != 2 {
				t.Errorf("second Incr = %d, want 2", n)
			}
		})
	}
}

// TestIncrConcurrent drives parallel increments through the memory store to
// confirm the counter never undercounts.
func TestIncrConcurrent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if _, err := s.Incr(ctx, OptCallCount); err != nil {
				t.Errorf("Incr: %v", err)
			}
		}()
	}
	wg.Wait()

	got := s.GetDefault(ctx, OptCallCount, "0")
	if got != "50" {
		t.Errorf("counter after %d concurrent Incr = %s, want 50", workers, got)
	}
}
