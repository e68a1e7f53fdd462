package channel_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/channel"
	"github.com/dmitrymomot/notifykit/pkg/notification"
)

const validAPNsToken = "a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4b5c6d7e8f90"

func pushGateway(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/push", r.URL.Path)
		assert.Equal(t, "key=test-key", r.Header.Get("Authorization"))
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewPushAdapter(t *testing.T) {
	t.Parallel()

	for _, platform := range []notification.Channel{
		notification.ChannelPushIOS,
		notification.ChannelPushAndroid,
		notification.ChannelPushWeb,
	} {
		a := channel.NewPushAdapter(platform, channel.PushConfig{})
		assert.Equal(t, platform, a.Channel())
	}

	assert.Panics(t, func() {
		channel.NewPushAdapter(notification.ChannelEmail, channel.PushConfig{})
	})
}

func TestPushTokenValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("ios requires 64-hex token", func(t *testing.T) {
		t.Parallel()
		a := channel.NewPushAdapter(notification.ChannelPushIOS, channel.PushConfig{GatewayURL: "http://gateway.invalid"})

		for _, token := range []string{"", "short", strings.Repeat("z", 64), validAPNsToken[:63]} {
			_, err := a.Send(ctx, token, channel.Content{Message: "hi"}, channel.Options{})
			assert.ErrorIs(t, err, channel.ErrInvalidEndpoint, "token %q", token)
		}
	})

	t.Run("android token only length checked", func(t *testing.T) {
		t.Parallel()
		a := channel.NewPushAdapter(notification.ChannelPushAndroid, channel.PushConfig{GatewayURL: "http://gateway.invalid"})

		_, err := a.Send(ctx, "tooshort", channel.Content{Message: "hi"}, channel.Options{})
		assert.ErrorIs(t, err, channel.ErrInvalidEndpoint)
	})
}

func TestPushAdapterSend(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("successful send", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, validAPNsToken, req["token"])
			assert.Equal(t, string(notification.ChannelPushIOS), req["platform"])
			assert.Equal(t, "New follower", req["title"])
			json.NewEncoder(w).Encode(map[string]string{"message_id": "push-123"})
		}))
		defer srv.Close()

		a := channel.NewPushAdapter(notification.ChannelPushIOS, channel.PushConfig{GatewayURL: srv.URL, APIKey: "test-key"})
		res, err := a.Send(ctx, validAPNsToken, channel.Content{Title: "New follower", Message: "Ada follows you"}, channel.Options{})
		require.NoError(t, err)
		assert.Equal(t, "push-123", res.ExternalID)
	})

	t.Run("410 means revoked token, permanent", func(t *testing.T) {
		t.Parallel()
		srv := pushGateway(t, http.StatusGone, `{"error":"unregistered"}`)
		a := channel.NewPushAdapter(notification.ChannelPushIOS, channel.PushConfig{GatewayURL: srv.URL, APIKey: "test-key"})

		_, err := a.Send(ctx, validAPNsToken, channel.Content{Message: "hi"}, channel.Options{})
		assert.ErrorIs(t, err, channel.ErrPermanent)
	})

	t.Run("404 means revoked token, permanent", func(t *testing.T) {
		t.Parallel()
		srv := pushGateway(t, http.StatusNotFound, `{"error":"unregistered"}`)
		a := channel.NewPushAdapter(notification.ChannelPushWeb, channel.PushConfig{GatewayURL: srv.URL, APIKey: "test-key"})

		_, err := a.Send(ctx, strings.Repeat("t", 32), channel.Content{Message: "hi"}, channel.Options{})
		assert.ErrorIs(t, err, channel.ErrPermanent)
	})

	t.Run("5xx is transient", func(t *testing.T) {
		t.Parallel()
		srv := pushGateway(t, http.StatusServiceUnavailable, `{"error":"maintenance"}`)
		a := channel.NewPushAdapter(notification.ChannelPushAndroid, channel.PushConfig{GatewayURL: srv.URL, APIKey: "test-key"})

		_, err := a.Send(ctx, strings.Repeat("t", 32), channel.Content{Message: "hi"}, channel.Options{})
		assert.ErrorIs(t, err, channel.ErrTransient)
	})
}
