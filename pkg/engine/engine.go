package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/channel"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/ratelimit"
	"github.com/dmitrymomot/notifykit/pkg/template"
)

// SentHook observes successful hand-offs to a provider, e.g. to feed a
// real-time activity stream. Hooks run synchronously on the delivery path
// and must be fast.
type SentHook func(n notification.Notification)

// Engine orchestrates the notification lifecycle. It is the sole writer of
// lifecycle transitions; channel adapters only report results.
type Engine struct {
	store     notification.Store
	events    notification.EventStore
	prefs     notification.PreferenceStore
	endpoints notification.EndpointStore
	limiter   *ratelimit.Limiter
	registry  *channel.Registry
	templates *template.Registry

	logger *slog.Logger
	now    func() time.Time
	sem    chan struct{}

	maxRetries          int
	backoffBase         time.Duration
	countFailedAttempts bool
	callbackSecret      string
	callbackMaxAge      time.Duration
	sentHook            SentHook
}

// Stores bundles the storage dependencies of the engine. The MemoryStore
// and PostgresStore implement all four interfaces, so a single value can
// fill every field.
type Stores struct {
	Notifications notification.Store
	Events        notification.EventStore
	Preferences   notification.PreferenceStore
	Endpoints     notification.EndpointStore
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock overrides the engine's time source, used by tests to drive
// backoff and day-window behavior without sleeping.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithMaxRetries sets the retry cap for transient failures.
func WithMaxRetries(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.maxRetries = n
		}
	}
}

// WithBackoffBase sets the base of the exponential retry backoff; the Nth
// failure schedules the next attempt base·2^N later.
func WithBackoffBase(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.backoffBase = d
		}
	}
}

// WithCountFailedAttempts controls whether the daily quota is charged for
// every accepted attempt (upstream behavior, default) or only for
// successful deliveries.
func WithCountFailedAttempts(count bool) Option {
	return func(e *Engine) { e.countFailedAttempts = count }
}

// WithDeliveryConcurrency bounds how many adapter sends may run at once.
func WithDeliveryConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.sem = make(chan struct{}, n)
		}
	}
}

// WithCallbackSecret sets the shared secret for callback verification.
func WithCallbackSecret(secret string) Option {
	return func(e *Engine) { e.callbackSecret = secret }
}

// WithCallbackMaxAge bounds the accepted callback signature age.
func WithCallbackMaxAge(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.callbackMaxAge = d
		}
	}
}

// WithSentHook registers an observer for successful sends.
func WithSentHook(hook SentHook) Option {
	return func(e *Engine) { e.sentHook = hook }
}

// WithConfig applies an environment-loaded Config.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		WithMaxRetries(cfg.MaxRetries)(e)
		WithBackoffBase(cfg.BackoffBase)(e)
		WithCountFailedAttempts(cfg.CountFailedAttempts)(e)
		if cfg.DeliveryConcurrency > 0 {
			WithDeliveryConcurrency(cfg.DeliveryConcurrency)(e)
		}
		WithCallbackSecret(cfg.CallbackSecret)(e)
		WithCallbackMaxAge(cfg.CallbackMaxAge)(e)
	}
}

// New assembles an engine from its collaborators.
func New(stores Stores, limiter *ratelimit.Limiter, registry *channel.Registry, templates *template.Registry, opts ...Option) *Engine {
	e := &Engine{
		store:               stores.Notifications,
		events:              stores.Events,
		prefs:               stores.Preferences,
		endpoints:           stores.Endpoints,
		limiter:             limiter,
		registry:            registry,
		templates:           templates,
		logger:              slog.Default(),
		now:                 time.Now,
		sem:                 make(chan struct{}, 32),
		maxRetries:          3,
		backoffBase:         60 * time.Second,
		countFailedAttempts: true,
		callbackMaxAge:      5 * time.Minute,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ListResult is the read-model response for a user's notification feed.
type ListResult struct {
	Notifications []notification.Notification `json:"notifications"`
	UnreadCount   int                         `json:"unread_count"`
}

// ListNotifications returns a user's notifications plus the in-app unread
// count.
func (e *Engine) ListNotifications(ctx context.Context, userID string, opts notification.ListOptions) (*ListResult, error) {
	items, err := e.store.List(ctx, userID, opts)
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	unread, err := e.store.CountUnread(ctx, userID)
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	return &ListResult{Notifications: items, UnreadCount: unread}, nil
}

// MarkRead marks specific in-app notifications read.
func (e *Engine) MarkRead(ctx context.Context, userID string, ids ...uuid.UUID) error {
	return e.store.MarkRead(ctx, userID, e.now(), ids...)
}

// MarkAllRead marks every unread notification of the user read.
func (e *Engine) MarkAllRead(ctx context.Context, userID string) error {
	return e.store.MarkAllRead(ctx, userID, e.now())
}

// Cancel terminates a scheduled notification before it becomes due. A
// cancellation racing the scheduler's claim is benign: whichever write lands
// first wins.
func (e *Engine) Cancel(ctx context.Context, id uuid.UUID, userID string) error {
	err := e.store.Cancel(ctx, id, userID, e.now())
	if errors.Is(err, notification.ErrInvalidTransition) {
		return ErrNotCancellable
	}
	return err
}

// GetPreferences returns all stored preferences of a user.
func (e *Engine) GetPreferences(ctx context.Context, userID string) ([]notification.Preference, error) {
	return e.prefs.ListPreferences(ctx, userID)
}

// SetPreferences upserts a batch of preference rows.
func (e *Engine) SetPreferences(ctx context.Context, userID string, prefs []notification.Preference) error {
	now := e.now()
	for _, p := range prefs {
		p.UserID = userID
		p.UpdatedAt = now
		if err := e.prefs.SetPreference(ctx, p); err != nil {
			return errors.Join(ErrStoreUnavailable, err)
		}
	}
	return nil
}

// RegisterChannel upserts an endpoint into the channel registry, idempotent
// per (user, channel, address).
func (e *Engine) RegisterChannel(ctx context.Context, userID string, ch notification.Channel, address string, metadata map[string]string) error {
	if !ch.Valid() {
		return errors.New("unknown channel type: " + string(ch))
	}
	return e.endpoints.Upsert(ctx, notification.Endpoint{
		UserID:     userID,
		Channel:    ch,
		Address:    address,
		Metadata:   metadata,
		IsActive:   true,
		IsVerified: true,
		CreatedAt:  e.now(),
	})
}

// Events returns the lifecycle history of a notification in append order.
func (e *Engine) Events(ctx context.Context, id uuid.UUID) ([]notification.Event, error) {
	return e.events.ListByNotification(ctx, id)
}

func (e *Engine) logError(ctx context.Context, msg string, err error, attrs ...slog.Attr) {
	attrs = append(attrs, logger.Error(err))
	e.logger.LogAttrs(ctx, slog.LevelError, msg, attrs...)
}
