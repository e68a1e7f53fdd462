package channel

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// DefaultSendTimeout bounds a single provider call when an adapter does not
// configure its own.
const DefaultSendTimeout = 10 * time.Second

// Content is the rendered material an adapter delivers.
type Content struct {
	Title   string
	Message string
	HTML    string
	Data    map[string]any
}

// Options carries per-delivery context an adapter may forward to providers.
type Options struct {
	NotificationID uuid.UUID
	UserID         string
	Metadata       map[string]string
}

// Result reports a completed send.
type Result struct {
	// ExternalID is the provider-assigned tracking identifier.
	ExternalID string

	// Queued is set by adapters with a deferred hand-off model (in-app
	// backlog) where the message is accepted but not yet in front of the
	// user.
	Queued bool
}

// Adapter delivers notifications over one medium. Implementations never
// panic past this boundary and never return provider-specific error types;
// all failures are normalized into the package's taxonomy.
type Adapter interface {
	// Channel returns the delivery medium this adapter serves.
	Channel() notification.Channel

	// Send delivers content to the endpoint. The call respects ctx and the
	// adapter's own timeout, whichever is shorter.
	Send(ctx context.Context, endpoint string, content Content, opts Options) (*Result, error)
}
