package engine_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/channel"
	"github.com/dmitrymomot/notifykit/pkg/engine"
	"github.com/dmitrymomot/notifykit/pkg/notification"
)

func TestListNotifications(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	inapp := channel.NewInAppAdapter()
	h := newHarnessWithAdapter(t, inapp)
	h.registerEndpoint(t, "user-1", "user-1", notification.ChannelInApp)

	var ids []uuid.UUID
	for range 3 {
		res := h.engine.Send(ctx, engine.SendRequest{
			UserID:  "user-1",
			Channel: notification.ChannelInApp,
			Message: "unread item",
		})
		require.True(t, res.Success)
		ids = append(ids, res.NotificationID)
	}

	t.Run("feed with unread count", func(t *testing.T) {
		out, err := h.engine.ListNotifications(ctx, "user-1", notification.ListOptions{})
		require.NoError(t, err)
		assert.Len(t, out.Notifications, 3)
		assert.Equal(t, 3, out.UnreadCount)
	})

	t.Run("mark one read", func(t *testing.T) {
		require.NoError(t, h.engine.MarkRead(ctx, "user-1", ids[0]))
		out, err := h.engine.ListNotifications(ctx, "user-1", notification.ListOptions{})
		require.NoError(t, err)
		assert.Equal(t, 2, out.UnreadCount)
	})

	t.Run("unread-only filter", func(t *testing.T) {
		out, err := h.engine.ListNotifications(ctx, "user-1", notification.ListOptions{UnreadOnly: true})
		require.NoError(t, err)
		assert.Len(t, out.Notifications, 2)
	})

	t.Run("mark all read", func(t *testing.T) {
		require.NoError(t, h.engine.MarkAllRead(ctx, "user-1"))
		out, err := h.engine.ListNotifications(ctx, "user-1", notification.ListOptions{})
		require.NoError(t, err)
		assert.Equal(t, 0, out.UnreadCount)
	})
}

func TestCancelPendingIsNotCancellable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	h := newHarness(t, notification.ChannelEmail)
	h.adapter.succeed("ext-1")
	h.registerEndpoint(t, "user-1", "ada@example.com", notification.ChannelEmail)

	res := h.engine.Send(ctx, engine.SendRequest{
		UserID:  "user-1",
		Channel: notification.ChannelEmail,
		Message: "already gone",
	})
	require.True(t, res.Success)

	err := h.engine.Cancel(ctx, res.NotificationID, "user-1")
	assert.ErrorIs(t, err, engine.ErrNotCancellable)

	t.Run("unknown id", func(t *testing.T) {
		err := h.engine.Cancel(ctx, uuid.New(), "user-1")
		assert.ErrorIs(t, err, notification.ErrNotFound)
	})
}

func TestPreferenceManagement(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	h := newHarness(t, notification.ChannelEmail)

	prefs, err := h.engine.GetPreferences(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, prefs)

	require.NoError(t, h.engine.SetPreferences(ctx, "user-1", []notification.Preference{
		{Channel: notification.ChannelEmail, Category: notification.CategoryMarketing, Enabled: false},
		{Channel: notification.ChannelSMS, Category: notification.CategoryTransactional, Enabled: true,
			Settings: map[string]any{"frequency_limit": 10}},
	}))

	prefs, err = h.engine.GetPreferences(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, prefs, 2)
	for _, p := range prefs {
		assert.Equal(t, "user-1", p.UserID, "user id stamped server-side")
		assert.False(t, p.UpdatedAt.IsZero())
	}
}

func TestRegisterChannel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	h := newHarness(t, notification.ChannelEmail)

	require.NoError(t, h.engine.RegisterChannel(ctx, "user-1", notification.ChannelEmail,
		"ada@example.com", map[string]string{"source": "signup"}))

	ep, err := h.store.Active(ctx, "user-1", notification.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", ep.Address)
	assert.Equal(t, "signup", ep.Metadata["source"])

	t.Run("unknown channel rejected", func(t *testing.T) {
		err := h.engine.RegisterChannel(ctx, "user-1", "smoke_signals", "hilltop", nil)
		assert.Error(t, err)
	})
}
