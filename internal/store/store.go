// Package store provides the named-value options store used for runtime
// settings and quota state: credential, premium flag, daily call counter,
// and last reset date.
//
// Two backends are available:
//   - RedisStore  — shared across replicas; INCR gives atomic counters.
//   - MemoryStore — in-process, mutex-guarded. For single-instance
//     deployments, local development, and tests.
//
// Both implement the Store interface so they are fully interchangeable.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no value exists under the given name.
var ErrNotFound = errors.New("store: not found")

// Option names persisted by the service.
const (
	OptCredential = "opt:ai_credential"
	OptPremium    = "opt:is_premium"
	OptCallCount  = "opt:ai_daily_calls"
	OptResetDate  = "opt:ai_reset_date"
)

// Store is a named-value configuration store.
//
// Values are plain strings; callers own serialization. Incr must be atomic
// with respect to concurrent callers so the quota counter never undercounts.
type Store interface {
	// Get returns the value stored under name, or ErrNotFound.
	Get(ctx context.Context, name string) (string, error)

	// GetDefault returns the value under name, or def when absent.
	// Backend errors also yield def so reads never fail the caller.
	GetDefault(ctx context.Context, name, def string) string

	// Set stores value under name, replacing any previous value.
	Set(ctx context.Context, name, value string) error

	// Delete removes name. Deleting an absent name is not an error.
	Delete(ctx context.Context, name string) error

	// Incr atomically increments the integer value under name by one and
	// returns the new value. An absent name counts as zero.
	Incr(ctx context.Context, name string) (int64, error)
}
