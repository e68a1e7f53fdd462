package mailer

import "errors"

var (
	// ErrInvalidMessage indicates the message fails local validation and
	// was never handed to the provider.
	ErrInvalidMessage = errors.New("invalid email message")

	// ErrInvalidConfig indicates missing or malformed mailer configuration.
	ErrInvalidConfig = errors.New("invalid mailer configuration")

	// ErrSendFailed indicates the provider rejected or failed the send.
	ErrSendFailed = errors.New("failed to send email")
)
