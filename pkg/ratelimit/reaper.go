package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// Reaper periodically purges expired rate-limit windows from the store.
// Backends with native expiry make its ticks cheap no-ops, so it is safe to
// run regardless of the configured store.
type Reaper struct {
	store    Store
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// ReaperOption configures a Reaper.
type ReaperOption func(*Reaper)

// WithReaperInterval sets how often the reaper runs. Default is one hour.
func WithReaperInterval(d time.Duration) ReaperOption {
	return func(r *Reaper) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithReaperClock overrides the reaper's time source.
func WithReaperClock(now func() time.Time) ReaperOption {
	return func(r *Reaper) {
		if now != nil {
			r.now = now
		}
	}
}

// WithReaperLogger sets the logger.
func WithReaperLogger(logger *slog.Logger) ReaperOption {
	return func(r *Reaper) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewReaper creates a reaper over the given store.
func NewReaper(store Store, opts ...ReaperOption) *Reaper {
	r := &Reaper{
		store:    store,
		interval: time.Hour,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start runs the purge loop until the context is cancelled.
func (r *Reaper) Start(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.purge(ctx)
		}
	}
}

// Run returns a function suitable for errgroup.
func (r *Reaper) Run(ctx context.Context) func() error {
	return func() error {
		return r.Start(ctx)
	}
}

func (r *Reaper) purge(ctx context.Context) {
	purged, err := r.store.PurgeExpired(ctx, r.now())
	if err != nil {
		r.logger.LogAttrs(ctx, slog.LevelError, "failed to purge expired rate-limit windows",
			slog.Any("error", err))
		return
	}
	if purged > 0 {
		r.logger.LogAttrs(ctx, slog.LevelDebug, "purged expired rate-limit windows",
			slog.Int("count", purged))
	}
}
