package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// PushConfig holds push gateway configuration. One FCM-style HTTP gateway
// serves all three platforms; the platform tag rides along in the request.
type PushConfig struct {
	GatewayURL string        `env:"PUSH_GATEWAY_URL"`
	APIKey     string        `env:"PUSH_API_KEY"`
	Timeout    time.Duration `env:"PUSH_TIMEOUT" envDefault:"10s"`
}

// apnsTokenRegex matches the 64-character hex device tokens APNs issues.
var apnsTokenRegex = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// PushAdapter delivers to one push platform. Construct one per platform tag
// with NewPushAdapter; the three instances share gateway configuration.
type PushAdapter struct {
	platform notification.Channel
	config   PushConfig
	client   *http.Client
}

// NewPushAdapter creates an adapter for the given push platform. Panics on
// non-push channels to catch wiring mistakes at startup.
func NewPushAdapter(platform notification.Channel, cfg PushConfig) *PushAdapter {
	switch platform {
	case notification.ChannelPushIOS, notification.ChannelPushAndroid, notification.ChannelPushWeb:
	default:
		panic(fmt.Sprintf("channel: %q is not a push platform", platform))
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSendTimeout
	}
	return &PushAdapter{
		platform: platform,
		config:   cfg,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

func (a *PushAdapter) Channel() notification.Channel {
	return a.platform
}

func (a *PushAdapter) validateToken(token string) error {
	switch a.platform {
	case notification.ChannelPushIOS:
		if !apnsTokenRegex.MatchString(token) {
			return fmt.Errorf("%w: malformed APNs device token", ErrInvalidEndpoint)
		}
	default:
		// FCM and web push tokens are opaque; only sanity-check length.
		if len(token) < 16 {
			return fmt.Errorf("%w: device token too short", ErrInvalidEndpoint)
		}
	}
	return nil
}

type pushResponse struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error,omitempty"`
}

func (a *PushAdapter) Send(ctx context.Context, endpoint string, content Content, opts Options) (*Result, error) {
	if err := a.validateToken(endpoint); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]any{
		"token":    endpoint,
		"platform": a.platform,
		"title":    content.Title,
		"body":     content.Message,
		"data":     content.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrPermanent, err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.GatewayURL+"/v1/push", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+a.config.APIKey)

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: gateway timeout: %v", ErrTransient, err)
		}
		return nil, fmt.Errorf("%w: gateway unreachable: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	var ack pushResponse
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil && resp.StatusCode < 300 {
		return nil, fmt.Errorf("%w: decode gateway response: %v", ErrTransient, err)
	}

	switch {
	case resp.StatusCode < 300:
		return &Result{ExternalID: ack.MessageID}, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		// The platform revoked the token; retrying wastes quota forever.
		return nil, fmt.Errorf("%w: device token no longer registered", ErrPermanent)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: gateway returned %d: %s", ErrTransient, resp.StatusCode, ack.Error)
	default:
		return nil, fmt.Errorf("%w: gateway returned %d: %s", ErrPermanent, resp.StatusCode, ack.Error)
	}
}
