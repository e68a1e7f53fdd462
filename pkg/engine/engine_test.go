package engine_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/channel"
	"github.com/dmitrymomot/notifykit/pkg/engine"
	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/ratelimit"
	"github.com/dmitrymomot/notifykit/pkg/template"
)

// fakeClock is a settable time source shared between the engine and the
// rate limiter so tests can cross retry backoffs and day boundaries.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// scriptAdapter plays back a scripted sequence of send outcomes.
type scriptAdapter struct {
	mu      sync.Mutex
	ch      notification.Channel
	results []scriptResult
	calls   int
}

type scriptResult struct {
	res *channel.Result
	err error
}

func newScriptAdapter(ch notification.Channel) *scriptAdapter {
	return &scriptAdapter{ch: ch}
}

func (a *scriptAdapter) succeed(externalID string) *scriptAdapter {
	a.results = append(a.results, scriptResult{res: &channel.Result{ExternalID: externalID}})
	return a
}

func (a *scriptAdapter) fail(err error) *scriptAdapter {
	a.results = append(a.results, scriptResult{err: err})
	return a
}

func (a *scriptAdapter) Channel() notification.Channel {
	return a.ch
}

func (a *scriptAdapter) Send(ctx context.Context, endpoint string, content channel.Content, opts channel.Options) (*channel.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	i := a.calls
	a.calls++
	if i >= len(a.results) {
		return &channel.Result{ExternalID: "default"}, nil
	}
	r := a.results[i]
	return r.res, r.err
}

func (a *scriptAdapter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// captureAdapter records the content of each send and always succeeds.
type captureAdapter struct {
	ch     notification.Channel
	onSend func(channel.Content)
}

func (a *captureAdapter) Channel() notification.Channel {
	return a.ch
}

func (a *captureAdapter) Send(ctx context.Context, endpoint string, content channel.Content, opts channel.Options) (*channel.Result, error) {
	if a.onSend != nil {
		a.onSend(content)
	}
	return &channel.Result{ExternalID: "captured"}, nil
}

// harness bundles an engine wired entirely to in-memory collaborators.
type harness struct {
	engine  *engine.Engine
	store   *notification.MemoryStore
	clock   *fakeClock
	adapter *scriptAdapter
}

func newHarness(t *testing.T, ch notification.Channel, opts ...engine.Option) *harness {
	t.Helper()
	adapter := newScriptAdapter(ch)
	h := newHarnessWithAdapter(t, adapter, opts...)
	h.adapter = adapter
	return h
}

func newHarnessWithAdapter(t *testing.T, adapter channel.Adapter, opts ...engine.Option) *harness {
	t.Helper()

	clock := newFakeClock()
	store := notification.NewMemoryStore()
	limiter := ratelimit.New(ratelimit.NewMemoryStore(), ratelimit.WithClock(clock.Now))
	templates := template.NewRegistry(map[string]template.Definition{
		"welcome": {
			Subject: "Welcome {{name}}",
			Body:    "Hello {{name}}, glad you joined.",
		},
	})

	base := []engine.Option{
		engine.WithClock(clock.Now),
		engine.WithLogger(slog.New(slog.DiscardHandler)),
	}
	e := engine.New(engine.Stores{
		Notifications: store,
		Events:        store,
		Preferences:   store,
		Endpoints:     store,
	}, limiter, channel.NewRegistry(adapter), templates, append(base, opts...)...)

	return &harness{engine: e, store: store, clock: clock}
}

func (h *harness) registerEndpoint(t *testing.T, userID, address string, ch notification.Channel) {
	t.Helper()
	require.NoError(t, h.store.Upsert(context.Background(), notification.Endpoint{
		UserID:     userID,
		Channel:    ch,
		Address:    address,
		IsActive:   true,
		IsVerified: true,
		CreatedAt:  h.clock.Now(),
	}))
}

func (h *harness) eventTypes(t *testing.T, id uuid.UUID) []notification.EventType {
	t.Helper()
	events, err := h.engine.Events(context.Background(), id)
	require.NoError(t, err)
	types := make([]notification.EventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}
