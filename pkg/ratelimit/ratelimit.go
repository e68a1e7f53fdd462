package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Key identifies one rate-limit counter.
type Key struct {
	UserID   string
	Channel  string
	Category string
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s", k.UserID, k.Channel, k.Category)
}

// Result describes the state of a counter after a check or reservation.
type Result struct {
	Allowed bool      // whether the attempt fits within the limit
	Current int       // attempts recorded in the current window
	Limit   int       // configured daily cap
	ResetAt time.Time // start of the next window
}

// Store is the counter backend.
type Store interface {
	// Incr increments the counter for the window starting at windowStart
	// and returns the new count. The counter is created on first use and
	// must not outlive windowEnd.
	Incr(ctx context.Context, key string, windowStart, windowEnd time.Time) (int, error)

	// Count returns the current counter value without incrementing, zero
	// when the window has no counter yet.
	Count(ctx context.Context, key string, windowStart time.Time) (int, error)

	// PurgeExpired removes counters whose window ended at or before now.
	// Backends with native expiry may implement this as a no-op.
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

// Limiter gates delivery attempts against a daily quota.
type Limiter struct {
	store Store
	now   func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the limiter's time source, used by tests to cross
// day boundaries without sleeping.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New creates a limiter over the given store.
func New(store Store, opts ...Option) *Limiter {
	l := &Limiter{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check reports whether one more attempt fits within limit, without
// consuming quota.
func (l *Limiter) Check(ctx context.Context, key Key, limit int) (*Result, error) {
	start, end := Window(l.now())
	current, err := l.store.Count(ctx, key.String(), start)
	if err != nil {
		return nil, err
	}
	return &Result{
		Allowed: current < limit,
		Current: current,
		Limit:   limit,
		ResetAt: end,
	}, nil
}

// Reserve records an attempt against the current window and returns the
// post-increment state. The attempt is counted even when the subsequent
// delivery fails; the engine decides whether to call Reserve at all.
func (l *Limiter) Reserve(ctx context.Context, key Key, limit int) (*Result, error) {
	start, end := Window(l.now())
	current, err := l.store.Incr(ctx, key.String(), start, end)
	if err != nil {
		return nil, err
	}
	return &Result{
		Allowed: current <= limit,
		Current: current,
		Limit:   limit,
		ResetAt: end,
	}, nil
}

// Window returns the fixed UTC calendar-day window [00:00, 24:00) containing t.
func Window(t time.Time) (start, end time.Time) {
	t = t.UTC()
	start = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24 * time.Hour)
}
