// Package cache provides the prompt-keyed response cache.
//
// Entries are keyed by a deterministic SHA-256 fingerprint of the prompt text
// (see Fingerprint) and expire after a fixed TTL. Expiry is lazy: expired
// entries are simply treated as absent on the next lookup.
//
// Two backends are available:
//   - RedisCache  — shared across replicas, recommended for production.
//   - MemoryCache — in-process TTL cache, zero external dependencies.
//
// Both implement the Cache interface so they are fully interchangeable.
package cache

import (
	"context"
	"time"
)

// DefaultTTL is the standard validity window for cached responses.
const DefaultTTL = time.Hour

// Cache stores previously computed responses under prompt fingerprints.
type Cache interface {
	// Get returns the cached value for key, or (nil, false) on a miss,
	// an expired entry, or any backend error.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores value under key for the duration of ttl. Backend failures
	// degrade silently — a value that could not be cached is still served.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Returns the backend error, if any.
	Delete(ctx context.Context, key string) error
}
