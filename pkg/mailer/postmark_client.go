package mailer

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/mrz1836/postmark"
)

type postmarkClient struct {
	client *postmark.Client
	config Config
}

// NewPostmarkClient creates a Postmark-backed sender. Both tokens are
// required so a misconfigured production deployment fails at startup
// instead of silently dropping mail.
func NewPostmarkClient(cfg Config) (Sender, error) {
	if cfg.PostmarkServerToken == "" {
		return nil, fmt.Errorf("%w: PostmarkServerToken is required", ErrInvalidConfig)
	}
	if cfg.PostmarkAccountToken == "" {
		return nil, fmt.Errorf("%w: PostmarkAccountToken is required", ErrInvalidConfig)
	}
	if !ValidAddress(cfg.SenderEmail) {
		return nil, fmt.Errorf("%w: SenderEmail must be a valid email address", ErrInvalidConfig)
	}
	if cfg.ReplyToEmail != "" && !ValidAddress(cfg.ReplyToEmail) {
		return nil, fmt.Errorf("%w: ReplyToEmail must be a valid email address", ErrInvalidConfig)
	}

	return &postmarkClient{
		client: postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		config: cfg,
	}, nil
}

// MustNewPostmarkClient creates a Postmark sender that panics on invalid
// config, for call sites that prefer fail-fast initialization.
func MustNewPostmarkClient(cfg Config) Sender {
	sender, err := NewPostmarkClient(cfg)
	if err != nil {
		panic(err)
	}
	return sender
}

// Send delivers the message through Postmark's transactional API. Open and
// HTML link tracking is enabled so the engine's opened/clicked events can be
// fed by provider callbacks.
func (c *postmarkClient) Send(ctx context.Context, msg Message) (*Receipt, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	resp, err := c.client.SendEmail(ctx, postmark.Email{
		From:       c.config.SenderEmail,
		ReplyTo:    c.config.ReplyToEmail,
		To:         msg.To,
		Subject:    msg.Subject,
		Tag:        msg.Tag,
		TextBody:   msg.BodyText,
		HTMLBody:   msg.BodyHTML,
		TrackOpens: true,
		TrackLinks: "HtmlOnly",
	})
	if err != nil {
		return nil, errors.Join(ErrSendFailed, err)
	}
	if resp.ErrorCode > 0 {
		return nil, errors.Join(
			ErrSendFailed,
			fmt.Errorf("postmark error %d: %s", resp.ErrorCode, resp.Message),
		)
	}
	return &Receipt{MessageID: messageID(resp)}, nil
}

func messageID(resp postmark.EmailResponse) string {
	if resp.MessageID != "" {
		return resp.MessageID
	}
	// Postmark always assigns an ID on success; this is a safety net for
	// API responses that omit it.
	return "postmark-" + strconv.FormatInt(resp.SubmittedAt.UnixNano(), 10)
}
