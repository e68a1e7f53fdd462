package channel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/mailer"
	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// EmailAdapter delivers over email through a mailer.Sender.
type EmailAdapter struct {
	sender  mailer.Sender
	timeout time.Duration
}

// EmailOption configures an EmailAdapter.
type EmailOption func(*EmailAdapter)

// WithEmailTimeout overrides the provider call timeout.
func WithEmailTimeout(d time.Duration) EmailOption {
	return func(a *EmailAdapter) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewEmailAdapter creates the email channel adapter.
func NewEmailAdapter(sender mailer.Sender, opts ...EmailOption) *EmailAdapter {
	a := &EmailAdapter{
		sender:  sender,
		timeout: DefaultSendTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *EmailAdapter) Channel() notification.Channel {
	return notification.ChannelEmail
}

func (a *EmailAdapter) Send(ctx context.Context, endpoint string, content Content, opts Options) (*Result, error) {
	if !mailer.ValidAddress(endpoint) {
		return nil, fmt.Errorf("%w: %q is not a valid email address", ErrInvalidEndpoint, endpoint)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	subject := content.Title
	if subject == "" {
		subject = content.Message
	}

	receipt, err := a.sender.Send(ctx, mailer.Message{
		To:       endpoint,
		Subject:  subject,
		BodyText: content.Message,
		BodyHTML: content.HTML,
		Tag:      opts.Metadata["tag"],
	})
	if err != nil {
		return nil, normalizeEmailErr(err)
	}
	return &Result{ExternalID: receipt.MessageID}, nil
}

func normalizeEmailErr(err error) error {
	switch {
	case errors.Is(err, mailer.ErrInvalidMessage):
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: provider timeout: %v", ErrTransient, err)
	case errors.Is(err, mailer.ErrSendFailed):
		// Provider-side rejections are ambiguous without parsing provider
		// codes; treat them as transient and let retry exhaustion settle it.
		return fmt.Errorf("%w: %v", ErrTransient, err)
	default:
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
}
