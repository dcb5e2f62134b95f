package quota

import (
	"context"
	"testing"
	"time"

	"github.com/sitewarden/sitewarden/internal/store"
)

// fixedClock returns a settable clock function for deterministic date math.
type fixedClock struct {
	t time.Time
}

func (c *fixedClock) now() time.Time { return c.t }

func newTestTracker(t *testing.T) (*Tracker, *fixedClock, store.Store) {
	t.Helper()

	clock := &fixedClock{t: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
	s := store.NewMemoryStore()
	return New(s, WithClock(clock.now)), clock, s
}

func TestCountStartsAtZero(t *testing.T) {
	tr, _, _ := newTestTracker(t)

	n, err := tr.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 0 {
		t.Errorf("Count = %d, want 0", n)
	}
}

func TestIncrementAccumulates(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	ctx := context.Background()

	// Stamp today so the lazy reset below is a no-op.
	if err := tr.CheckAndReset(ctx); err != nil {
		t.Fatalf("CheckAndReset: %v", err)
	}

	for i := 1; i <= 3; i++ {
		n, err := tr.Increment(ctx)
		if err != nil {
			t.Fatalf("Increment: %v", err)
		}
		if n != int64(i) {
			t.Errorf("Increment #%d = %d, want %d", i, n, i)
		}
	}

	n, err := tr.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 3 {
		t.Errorf("Count = %d, want 3", n)
	}
}

// TestLazyResetOnDateChange verifies the counter resets to zero exactly once
// when the observed date changes, no matter how many times the check runs.
func TestLazyResetOnDateChange(t *testing.T) {
	tr, clock, s := newTestTracker(t)
	ctx := context.Background()

	// Stamp today's date, then record two calls.
	if err := tr.CheckAndReset(ctx); err != nil {
		t.Fatalf("CheckAndReset: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := tr.Increment(ctx); err != nil {
			t.Fatalf("Increment: %v", err)
		}
	}

	// Same day: repeated checks must not touch the counter.
	if n, _ := tr.Count(ctx); n != 2 {
		t.Fatalf("Count before day change = %d, want 2", n)
	}

	// Cross midnight.
	clock.t = clock.t.AddDate(0, 0, 1)

	for i := 0; i < 3; i++ {
		if err := tr.CheckAndReset(ctx); err != nil {
			t.Fatalf("CheckAndReset: %v", err)
		}
	}

	if n, _ := tr.Count(ctx); n != 0 {
		t.Errorf("Count after day change = %d, want 0", n)
	}
	if got := s.GetDefault(ctx, store.OptResetDate, ""); got != "2026-03-15" {
		t.Errorf("reset date = %q, want 2026-03-15", got)
	}
}

// TestSchedulerAndLazyPathsConverge runs the active Reset after the lazy path
// already fired and confirms the state is identical.
func TestSchedulerAndLazyPathsConverge(t *testing.T) {
	tr, clock, s := newTestTracker(t)
	ctx := context.Background()

	if _, err := tr.Increment(ctx); err != nil {
		t.Fatalf("Increment: %v", err)
	}

	clock.t = clock.t.AddDate(0, 0, 1)

	// Lazy path first.
	if err := tr.CheckAndReset(ctx); err != nil {
		t.Fatalf("CheckAndReset: %v", err)
	}
	// Scheduler path second.
	if err := tr.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	if n, _ := tr.Count(ctx); n != 0 {
		t.Errorf("Count = %d, want 0", n)
	}
	if got := s.GetDefault(ctx, store.OptResetDate, ""); got != "2026-03-15" {
		t.Errorf("reset date = %q, want 2026-03-15", got)
	}
}

func TestPremiumFlag(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	ctx := context.Background()

	if tr.Premium(ctx) {
		t.Error("Premium should default to false")
	}

	if err := tr.SetPremium(ctx, true); err != nil {
		t.Fatalf("SetPremium: %v", err)
	}
	if !tr.Premium(ctx) {
		t.Error("Premium should be true after SetPremium(true)")
	}

	if err := tr.SetPremium(ctx, false); err != nil {
		t.Fatalf("SetPremium: %v", err)
	}
	if tr.Premium(ctx) {
		t.Error("Premium should be false after SetPremium(false)")
	}
}

func TestSnapshot(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	ctx := context.Background()

	if err := tr.CheckAndReset(ctx); err != nil {
		t.Fatalf("CheckAndReset: %v", err)
	}
	if _, err := tr.Increment(ctx); err != nil {
		t.Fatalf("Increment: %v", err)
	}

	stats := tr.Snapshot(ctx)
	if stats.CallsToday != 1 {
		t.Errorf("CallsToday = %d, want 1", stats.CallsToday)
	}
	if stats.LastResetDate != "2026-03-14" {
		t.Errorf("LastResetDate = %q, want 2026-03-14", stats.LastResetDate)
	}
	if stats.NextResetDate != "2026-03-15" {
		t.Errorf("NextResetDate = %q, want 2026-03-15", stats.NextResetDate)
	}
	if stats.IsPremium {
		t.Error("IsPremium = true, want false")
	}
}

// TestCorruptCounterValue confirms a non-numeric stored counter reads as zero
// instead of failing.
func TestCorruptCounterValue(t *testing.T) {
	tr, clock, s := newTestTracker(t)
	ctx := context.Background()

	// Stamp today first so the lazy reset doesn't repair the value.
	if err := tr.CheckAndReset(ctx); err != nil {
		t.Fatalf("CheckAndReset: %v", err)
	}
	_ = clock
	if err := s.Set(ctx, store.OptCallCount, "garbage"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	n, err := tr.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 0 {
		t.Errorf("Count with corrupt value = %d, want 0", n)
	}
}
