package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/ratelimit"
)

// Scheduler periodically claims due notifications and dispatches them
// through the engine's delivery path. Due means a scheduled notification
// whose scheduled_at has passed or a pending notification whose retry
// backoff has elapsed.
type Scheduler struct {
	engine   *Engine
	interval time.Duration
	batch    int
	logger   *slog.Logger
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerInterval sets the polling interval.
func WithSchedulerInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSchedulerBatch sets the maximum notifications claimed per tick.
func WithSchedulerBatch(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.batch = n
		}
	}
}

// WithSchedulerLogger sets the scheduler's logger.
func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewScheduler creates a scheduler around the engine.
func NewScheduler(e *Engine, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		engine:   e,
		interval: 30 * time.Second,
		batch:    100,
		logger:   e.logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the polling loop until ctx is cancelled. It returns ctx.Err()
// on shutdown, matching errgroup usage.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.LogAttrs(ctx, slog.LevelInfo, "scheduler started",
		logger.Component("scheduler"),
		logger.Duration(s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.LogAttrs(ctx, slog.LevelInfo, "scheduler stopped", logger.Component("scheduler"))
			return ctx.Err()
		case <-ticker.C:
			if n, err := s.Tick(ctx); err != nil {
				s.logger.LogAttrs(ctx, slog.LevelError, "scheduler tick failed",
					logger.Component("scheduler"), logger.Error(err))
			} else if n > 0 {
				s.logger.LogAttrs(ctx, slog.LevelDebug, "scheduler dispatched batch",
					logger.Component("scheduler"), slog.Int("count", n))
			}
		}
	}
}

// Tick claims one batch of due notifications and delivers them
// concurrently, returning how many were dispatched. Exposed so tests and
// one-shot jobs can drive the scheduler without the ticker.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	e := s.engine
	due, err := e.store.ClaimDue(ctx, e.now(), s.batch)
	if err != nil {
		return 0, err
	}
	if len(due) == 0 {
		return 0, nil
	}

	var wg sync.WaitGroup
	for _, n := range due {
		wg.Add(1)
		go func(n notification.Notification) {
			defer wg.Done()
			s.dispatch(ctx, n)
		}(n)
	}
	wg.Wait()
	return len(due), nil
}

// dispatch runs the acceptance gates that Send applies before persistence,
// then delivers. Preferences and quota are re-checked at delivery time so a
// user who disabled a channel after scheduling is not notified anyway.
func (s *Scheduler) dispatch(ctx context.Context, n notification.Notification) {
	e := s.engine

	pref, err := e.prefs.GetPreference(ctx, n.UserID, n.Channel, n.Category)
	if err == nil && !pref.Allowed() {
		n.LastError = "blocked by user preference"
		e.terminate(ctx, n, ReasonBlockedByPref)
		return
	}

	key := ratelimit.Key{UserID: n.UserID, Channel: string(n.Channel), Category: string(n.Category)}
	limit := pref.FrequencyLimit()

	// Retries already consumed quota on the first attempt; only first
	// deliveries of scheduled notifications reserve here.
	if n.RetryCount == 0 {
		rl, err := e.limiter.Check(ctx, key, limit)
		if err == nil && !rl.Allowed {
			n.LastError = "daily rate limit exceeded"
			e.terminate(ctx, n, ReasonRateLimitExceeded)
			return
		}
		if e.countFailedAttempts {
			if _, err := e.limiter.Reserve(ctx, key, limit); err != nil {
				e.logError(ctx, "failed to reserve rate limit slot", err, logger.UserID(n.UserID))
			}
		}
	}

	e.deliver(ctx, n, key, limit)
}
