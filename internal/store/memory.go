package store

import (
	"context"
	"strconv"
	"sync"
)

// MemoryStore is an in-process Store. Safe for concurrent use; Incr is
// serialized by the mutex, so counters never undercount within one process.
// Values do not survive a restart — use RedisStore in production.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) Get(_ context.Context, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	val, ok := s.values[name]
	if !ok {
		return "", ErrNotFound
	}
	return val, nil
}

func (s *MemoryStore) GetDefault(ctx context.Context, name, def string) string {
	val, err := s.Get(ctx, name)
	if err != nil {
		return def
	}
	return val
}

func (s *MemoryStore) Set(_ context.Context, name, value string) error {
	s.mu.Lock()
	s.values[name] = value
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	delete(s.values, name)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Incr(_ context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, _ := strconv.ParseInt(s.values[name], 10, 64)
	n++
	s.values[name] = strconv.FormatInt(n, 10)
	return n, nil
}
