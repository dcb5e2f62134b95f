// Package quota tracks the free-tier daily AI call budget.
//
// State is two persisted options: the number of calls made today and the date
// of the last counter reset. The counter resets to zero when the calendar
// date changes, through either of two idempotent, converging paths:
//
//   - lazily, the first time any operation notices the stored date is stale;
//   - actively, when the daily scheduler invokes Reset.
//
// Premium accounts bypass the quota entirely: they are never blocked and
// never counted, so disabling premium later resumes from the accumulated
// free-tier count.
package quota

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sitewarden/sitewarden/internal/store"
)

const dateFormat = "2006-01-02"

// Stats is a read-only snapshot of quota state for display.
type Stats struct {
	CallsToday    int    `json:"calls_today"`
	LastResetDate string `json:"last_reset_date"`
	IsPremium     bool   `json:"is_premium"`
	NextResetDate string `json:"next_reset_date"`
}

// Tracker maintains the daily call counter against a shared options store.
//
// The in-process mutex serializes the reset-check-then-write sequence within
// one process; cross-process increments rely on the store's atomic Incr.
type Tracker struct {
	store store.Store
	now   func() time.Time

	mu sync.Mutex
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces the wall clock, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New creates a Tracker backed by s.
func New(s store.Store, opts ...Option) *Tracker {
	t := &Tracker{store: s, now: time.Now}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Premium reports whether the account is on the premium tier.
// Reads through to the store flag on every call so toggles apply immediately.
func (t *Tracker) Premium(ctx context.Context) bool {
	v := t.store.GetDefault(ctx, store.OptPremium, "false")
	premium, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return premium
}

// SetPremium persists the premium flag.
func (t *Tracker) SetPremium(ctx context.Context, premium bool) error {
	return t.store.Set(ctx, store.OptPremium, strconv.FormatBool(premium))
}

// Count returns the number of calls made today, applying the lazy daily
// reset first.
func (t *Tracker) Count(ctx context.Context) (int, error) {
	if err := t.CheckAndReset(ctx); err != nil {
		return 0, err
	}

	v := t.store.GetDefault(ctx, store.OptCallCount, "0")
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, nil
	}
	return n, nil
}

// CheckAndReset zeroes the counter if the stored reset date is not today.
// Calling it again on the same day is a no-op, so the lazy path and the
// scheduler path converge on identical state.
func (t *Tracker) CheckAndReset(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	today := t.today()
	if t.store.GetDefault(ctx, store.OptResetDate, "") == today {
		return nil
	}
	return t.reset(ctx, today)
}

// Reset unconditionally zeroes the counter and stamps today's date.
// Invoked by the daily scheduler; safe to call any number of times.
func (t *Tracker) Reset(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reset(ctx, t.today())
}

func (t *Tracker) reset(ctx context.Context, today string) error {
	if err := t.store.Set(ctx, store.OptCallCount, "0"); err != nil {
		return fmt.Errorf("quota: reset counter: %w", err)
	}
	if err := t.store.Set(ctx, store.OptResetDate, today); err != nil {
		return fmt.Errorf("quota: stamp reset date: %w", err)
	}
	return nil
}

// Increment adds one successful call to today's counter and returns the new
// count. Callers must invoke it only after a successful, non-cached,
// non-premium upstream call.
func (t *Tracker) Increment(ctx context.Context) (int64, error) {
	n, err := t.store.Incr(ctx, store.OptCallCount)
	if err != nil {
		return 0, fmt.Errorf("quota: increment: %w", err)
	}
	return n, nil
}

// Snapshot returns the current usage stats for display. Never fails: store
// errors surface as zero counts.
func (t *Tracker) Snapshot(ctx context.Context) Stats {
	count, _ := t.Count(ctx)

	return Stats{
		CallsToday:    count,
		LastResetDate: t.store.GetDefault(ctx, store.OptResetDate, "never"),
		IsPremium:     t.Premium(ctx),
		NextResetDate: t.now().AddDate(0, 0, 1).Format(dateFormat),
	}
}

func (t *Tracker) today() string {
	return t.now().Format(dateFormat)
}
