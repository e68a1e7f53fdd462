package engine_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/channel"
	"github.com/dmitrymomot/notifykit/pkg/engine"
	"github.com/dmitrymomot/notifykit/pkg/notification"
)

func TestSendValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name string
		req  engine.SendRequest
	}{
		{
			name: "missing user",
			req:  engine.SendRequest{Channel: notification.ChannelEmail, Message: "hi"},
		},
		{
			name: "unknown channel",
			req:  engine.SendRequest{UserID: "user-1", Channel: "telegraph", Message: "hi"},
		},
		{
			name: "no message and no template",
			req:  engine.SendRequest{UserID: "user-1", Channel: notification.ChannelEmail},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, notification.ChannelEmail)
			res := h.engine.Send(ctx, tt.req)
			assert.False(t, res.Success)
			assert.Equal(t, engine.ReasonInvalidRequest, res.Reason)
			assert.Equal(t, 0, h.adapter.callCount(), "nothing dispatched")
		})
	}
}

func TestSendSuccess(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	h := newHarness(t, notification.ChannelEmail)
	h.adapter.succeed("ext-1")
	h.registerEndpoint(t, "user-1", "ada@example.com", notification.ChannelEmail)

	res := h.engine.Send(ctx, engine.SendRequest{
		UserID:  "user-1",
		Channel: notification.ChannelEmail,
		Title:   "Hi",
		Message: "hello there",
	})

	require.True(t, res.Success)
	assert.Equal(t, notification.StatusSent, res.Status)
	assert.NotEqual(t, "", res.NotificationID.String())

	stored, err := h.store.Get(ctx, res.NotificationID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusSent, stored.Status)
	assert.Equal(t, "ext-1", stored.ExternalID)
	assert.Equal(t, notification.CategoryTransactional, stored.Category, "category defaults")
	assert.Equal(t, notification.PriorityNormal, stored.Priority, "priority defaults")

	assert.Equal(t,
		[]notification.EventType{notification.EventCreated, notification.EventSent},
		h.eventTypes(t, res.NotificationID))
}

func TestSendRendersTemplate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var sent channel.Content
	h := newHarnessWithAdapter(t, &captureAdapter{
		ch:     notification.ChannelEmail,
		onSend: func(c channel.Content) { sent = c },
	})
	h.registerEndpoint(t, "user-1", "ada@example.com", notification.ChannelEmail)

	res := h.engine.Send(ctx, engine.SendRequest{
		UserID:     "user-1",
		Channel:    notification.ChannelEmail,
		TemplateID: "welcome",
		Data:       map[string]any{"name": "Ada"},
	})
	require.True(t, res.Success)
	assert.Equal(t, "Welcome Ada", sent.Title)
	assert.Equal(t, "Hello Ada, glad you joined.", sent.Message)
}

func TestSendUnknownTemplateFallsBackToVerbatim(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var sent channel.Content
	h := newHarnessWithAdapter(t, &captureAdapter{
		ch:     notification.ChannelEmail,
		onSend: func(c channel.Content) { sent = c },
	})
	h.registerEndpoint(t, "user-1", "ada@example.com", notification.ChannelEmail)

	res := h.engine.Send(ctx, engine.SendRequest{
		UserID:     "user-1",
		Channel:    notification.ChannelEmail,
		TemplateID: "does-not-exist",
		Title:      "Raw title",
		Message:    "raw body",
	})
	require.True(t, res.Success)
	assert.Equal(t, "Raw title", sent.Title)
	assert.Equal(t, "raw body", sent.Message)
}

func TestSendBlockedByPreference(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	h := newHarness(t, notification.ChannelEmail)
	h.registerEndpoint(t, "user-1", "ada@example.com", notification.ChannelEmail)
	require.NoError(t, h.store.SetPreference(ctx, notification.Preference{
		UserID:   "user-1",
		Channel:  notification.ChannelEmail,
		Category: notification.CategoryMarketing,
		Enabled:  false,
	}))

	res := h.engine.Send(ctx, engine.SendRequest{
		UserID:   "user-1",
		Channel:  notification.ChannelEmail,
		Category: notification.CategoryMarketing,
		Message:  "buy things",
	})

	assert.False(t, res.Success)
	assert.Equal(t, engine.ReasonBlockedByPref, res.Reason)
	assert.Equal(t, 0, h.adapter.callCount())

	// The block is per (channel, category); transactional mail still flows.
	h.adapter.succeed("ext-1")
	res = h.engine.Send(ctx, engine.SendRequest{
		UserID:  "user-1",
		Channel: notification.ChannelEmail,
		Message: "your receipt",
	})
	assert.True(t, res.Success)
}

func TestSendRateLimited(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	h := newHarness(t, notification.ChannelEmail)
	h.registerEndpoint(t, "user-1", "ada@example.com", notification.ChannelEmail)
	require.NoError(t, h.store.SetPreference(ctx, notification.Preference{
		UserID:   "user-1",
		Channel:  notification.ChannelEmail,
		Category: notification.CategoryTransactional,
		Enabled:  true,
		Settings: map[string]any{"frequency_limit": 2},
	}))

	for i := range 2 {
		h.adapter.succeed(fmt.Sprintf("ext-%d", i))
		res := h.engine.Send(ctx, engine.SendRequest{
			UserID:  "user-1",
			Channel: notification.ChannelEmail,
			Message: "hello",
		})
		require.True(t, res.Success, "send %d within limit", i)
	}

	res := h.engine.Send(ctx, engine.SendRequest{
		UserID:  "user-1",
		Channel: notification.ChannelEmail,
		Message: "hello again",
	})
	assert.False(t, res.Success)
	assert.Equal(t, engine.ReasonRateLimitExceeded, res.Reason)
	assert.Equal(t, 2, h.adapter.callCount())

	t.Run("window resets at midnight UTC", func(t *testing.T) {
		h.clock.Advance(13 * time.Hour) // 12:00 -> 01:00 next day
		h.adapter.succeed("ext-next-day")
		res := h.engine.Send(ctx, engine.SendRequest{
			UserID:  "user-1",
			Channel: notification.ChannelEmail,
			Message: "new day",
		})
		assert.True(t, res.Success)
	})
}

func TestSendFailedAttemptsChargeQuota(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	h := newHarness(t, notification.ChannelEmail, engine.WithMaxRetries(0))
	h.registerEndpoint(t, "user-1", "ada@example.com", notification.ChannelEmail)
	require.NoError(t, h.store.SetPreference(ctx, notification.Preference{
		UserID:   "user-1",
		Channel:  notification.ChannelEmail,
		Category: notification.CategoryTransactional,
		Enabled:  true,
		Settings: map[string]any{"frequency_limit": 1},
	}))

	h.adapter.fail(channel.ErrPermanent)
	res := h.engine.Send(ctx, engine.SendRequest{
		UserID:  "user-1",
		Channel: notification.ChannelEmail,
		Message: "will fail",
	})
	require.False(t, res.Success)
	assert.Equal(t, notification.StatusFailed, res.Status)

	// The failed attempt consumed the only slot of the day.
	res = h.engine.Send(ctx, engine.SendRequest{
		UserID:  "user-1",
		Channel: notification.ChannelEmail,
		Message: "retry manually",
	})
	assert.False(t, res.Success)
	assert.Equal(t, engine.ReasonRateLimitExceeded, res.Reason)
}

func TestSendNoActiveEndpoint(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	h := newHarness(t, notification.ChannelEmail)

	res := h.engine.Send(ctx, engine.SendRequest{
		UserID:  "user-1",
		Channel: notification.ChannelEmail,
		Message: "hello",
	})

	assert.False(t, res.Success)
	assert.Equal(t, engine.ReasonNoActiveChannel, res.Reason)
	assert.Equal(t, notification.StatusFailed, res.Status)
	assert.Equal(t, 0, h.adapter.callCount())

	assert.Equal(t,
		[]notification.EventType{notification.EventCreated, notification.EventFailed},
		h.eventTypes(t, res.NotificationID))
}

func TestSendScheduled(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("future schedule defers delivery", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, notification.ChannelEmail)
		h.registerEndpoint(t, "user-1", "ada@example.com", notification.ChannelEmail)

		at := h.clock.Now().Add(time.Hour)
		res := h.engine.Send(ctx, engine.SendRequest{
			UserID:      "user-1",
			Channel:     notification.ChannelEmail,
			Message:     "later",
			ScheduledAt: &at,
		})

		require.True(t, res.Success)
		assert.Equal(t, notification.StatusScheduled, res.Status)
		assert.Equal(t, 0, h.adapter.callCount(), "no delivery before due time")
	})

	t.Run("past schedule sends immediately", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, notification.ChannelEmail)
		h.adapter.succeed("ext-1")
		h.registerEndpoint(t, "user-1", "ada@example.com", notification.ChannelEmail)

		at := h.clock.Now().Add(-time.Minute)
		res := h.engine.Send(ctx, engine.SendRequest{
			UserID:      "user-1",
			Channel:     notification.ChannelEmail,
			Message:     "now actually",
			ScheduledAt: &at,
		})

		require.True(t, res.Success)
		assert.Equal(t, notification.StatusSent, res.Status)
		assert.Equal(t, 1, h.adapter.callCount())
	})
}

func TestSendRetrySchedulesBackoff(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	h := newHarness(t, notification.ChannelEmail)
	h.adapter.fail(channel.ErrTransient)
	h.registerEndpoint(t, "user-1", "ada@example.com", notification.ChannelEmail)

	start := h.clock.Now()
	res := h.engine.Send(ctx, engine.SendRequest{
		UserID:  "user-1",
		Channel: notification.ChannelEmail,
		Message: "flaky",
	})

	assert.False(t, res.Success)
	assert.Equal(t, notification.StatusPending, res.Status, "transient failure re-queues")

	stored, err := h.store.Get(ctx, res.NotificationID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.RetryCount)
	require.NotNil(t, stored.NextRetryAt)
	// First retry waits base * 2^1 = 120s.
	assert.Equal(t, start.Add(2*time.Minute), *stored.NextRetryAt)
	assert.NotEmpty(t, stored.LastError)
}

func TestSendPermanentFailureIsTerminal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	h := newHarness(t, notification.ChannelEmail)
	h.adapter.fail(fmt.Errorf("%w: hard bounce", channel.ErrPermanent))
	h.registerEndpoint(t, "user-1", "ada@example.com", notification.ChannelEmail)

	res := h.engine.Send(ctx, engine.SendRequest{
		UserID:  "user-1",
		Channel: notification.ChannelEmail,
		Message: "bouncing",
	})

	assert.False(t, res.Success)
	assert.Equal(t, notification.StatusFailed, res.Status)
	assert.Equal(t, engine.ReasonDeliveryFailed, res.Reason)

	t.Run("endpoint deactivated after permanent rejection", func(t *testing.T) {
		_, err := h.store.Active(ctx, "user-1", notification.ChannelEmail)
		assert.ErrorIs(t, err, notification.ErrEndpointNotFound)
	})
}

func TestSendExpiredBeforeDelivery(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	h := newHarness(t, notification.ChannelEmail)
	h.registerEndpoint(t, "user-1", "ada@example.com", notification.ChannelEmail)

	expired := h.clock.Now().Add(-time.Minute)
	res := h.engine.Send(ctx, engine.SendRequest{
		UserID:    "user-1",
		Channel:   notification.ChannelEmail,
		Message:   "stale",
		ExpiresAt: &expired,
	})

	assert.False(t, res.Success)
	assert.Equal(t, notification.StatusFailed, res.Status)
	assert.Equal(t, 0, h.adapter.callCount())
}

func TestSendInAppDeliveredImmediately(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	inapp := channel.NewInAppAdapter()
	h := newHarnessWithAdapter(t, inapp)
	h.registerEndpoint(t, "user-1", "user-1", notification.ChannelInApp)

	session := inapp.Connect(ctx, "user-1")
	defer session.Close()

	res := h.engine.Send(ctx, engine.SendRequest{
		UserID:  "user-1",
		Channel: notification.ChannelInApp,
		Message: "ping",
	})

	require.True(t, res.Success)
	assert.Equal(t, notification.StatusDelivered, res.Status, "live session skips the sent state")
	assert.Equal(t,
		[]notification.EventType{notification.EventCreated, notification.EventSent, notification.EventDelivered},
		h.eventTypes(t, res.NotificationID))
}

func TestSendInAppOfflineStaysSent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	inapp := channel.NewInAppAdapter()
	h := newHarnessWithAdapter(t, inapp)
	h.registerEndpoint(t, "user-1", "user-1", notification.ChannelInApp)

	res := h.engine.Send(ctx, engine.SendRequest{
		UserID:  "user-1",
		Channel: notification.ChannelInApp,
		Message: "while away",
	})

	require.True(t, res.Success)
	assert.Equal(t, notification.StatusSent, res.Status, "backlogged message is not yet delivered")
	assert.Equal(t, 1, inapp.BacklogSize("user-1"))
}

func TestSendBulk(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	h := newHarness(t, notification.ChannelEmail)
	h.adapter.succeed("ext-1").succeed("ext-2")
	h.registerEndpoint(t, "user-1", "one@example.com", notification.ChannelEmail)
	h.registerEndpoint(t, "user-2", "two@example.com", notification.ChannelEmail)
	// user-3 has no endpoint.

	reqs := make([]engine.SendRequest, 3)
	for i, userID := range []string{"user-1", "user-2", "user-3"} {
		reqs[i] = engine.SendRequest{
			UserID:  userID,
			Channel: notification.ChannelEmail,
			Message: "announcement",
		}
	}
	out := h.engine.SendBulk(ctx, reqs)

	require.Len(t, out.Results, 3)
	assert.Equal(t, 2, out.Succeeded)
	assert.Equal(t, 1, out.Failed)
	assert.True(t, out.Results[0].Success)
	assert.True(t, out.Results[1].Success)
	assert.False(t, out.Results[2].Success)
	assert.Equal(t, engine.ReasonNoActiveChannel, out.Results[2].Reason)
}
