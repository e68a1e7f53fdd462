package mailer

import (
	"context"
	"fmt"
	"regexp"
)

// Sender sends a single transactional email.
type Sender interface {
	Send(ctx context.Context, msg Message) (*Receipt, error)
}

// Message is one outgoing email.
type Message struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	BodyText string `json:"body_text,omitempty"`
	BodyHTML string `json:"body_html,omitempty"`
	Tag      string `json:"tag,omitempty"`
}

// Receipt carries the provider-assigned identifier of an accepted message.
type Receipt struct {
	MessageID string
}

// addressRegex is a pragmatic RFC 5322 subset; providers do the final word
// on deliverability.
var addressRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidAddress reports whether addr looks like a deliverable email address.
func ValidAddress(addr string) bool {
	return addressRegex.MatchString(addr)
}

// Validate checks the message for the fields every provider requires.
func (m Message) Validate() error {
	if m.To == "" {
		return fmt.Errorf("%w: recipient is required", ErrInvalidMessage)
	}
	if !ValidAddress(m.To) {
		return fmt.Errorf("%w: recipient must be a valid email address", ErrInvalidMessage)
	}
	if m.Subject == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidMessage)
	}
	if m.BodyText == "" && m.BodyHTML == "" {
		return fmt.Errorf("%w: message body is required", ErrInvalidMessage)
	}
	return nil
}
