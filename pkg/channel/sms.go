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

// e164Regex matches international phone numbers in E.164 form.
var e164Regex = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

// SMSConfig holds carrier gateway configuration.
type SMSConfig struct {
	GatewayURL string        `env:"SMS_GATEWAY_URL"`
	APIToken   string        `env:"SMS_API_TOKEN"`
	Timeout    time.Duration `env:"SMS_TIMEOUT" envDefault:"10s"`
}

// SMSAdapter delivers over SMS through a JSON carrier HTTP API.
type SMSAdapter struct {
	config SMSConfig
	client *http.Client
}

// NewSMSAdapter creates the SMS channel adapter.
func NewSMSAdapter(cfg SMSConfig) *SMSAdapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSendTimeout
	}
	return &SMSAdapter{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (a *SMSAdapter) Channel() notification.Channel {
	return notification.ChannelSMS
}

// smsResponse is the carrier's send acknowledgment.
type smsResponse struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error,omitempty"`
}

func (a *SMSAdapter) Send(ctx context.Context, endpoint string, content Content, opts Options) (*Result, error) {
	if !e164Regex.MatchString(endpoint) {
		return nil, fmt.Errorf("%w: %q is not an E.164 phone number", ErrInvalidEndpoint, endpoint)
	}

	body, err := json.Marshal(map[string]string{
		"to":        endpoint,
		"message":   content.Message,
		"reference": opts.NotificationID.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrPermanent, err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.GatewayURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.config.APIToken)

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: carrier timeout: %v", ErrTransient, err)
		}
		return nil, fmt.Errorf("%w: carrier unreachable: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	var ack smsResponse
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil && resp.StatusCode < 300 {
		return nil, fmt.Errorf("%w: decode carrier response: %v", ErrTransient, err)
	}

	switch {
	case resp.StatusCode < 300:
		return &Result{ExternalID: ack.MessageID}, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: carrier returned %d: %s", ErrTransient, resp.StatusCode, ack.Error)
	case resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusBadRequest:
		// Carrier rejected the number itself.
		return nil, fmt.Errorf("%w: carrier rejected recipient: %s", ErrPermanent, ack.Error)
	default:
		return nil, fmt.Errorf("%w: carrier returned %d: %s", ErrPermanent, resp.StatusCode, ack.Error)
	}
}
