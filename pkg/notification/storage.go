package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the system of record for notifications. It provides the storage
// primitives the engine's state machine is built on; it never makes
// transition decisions itself.
type Store interface {
	// Create persists a new notification.
	Create(ctx context.Context, n *Notification) error

	// Get retrieves a notification by ID.
	Get(ctx context.Context, id uuid.UUID) (*Notification, error)

	// GetByExternalID retrieves a notification by the provider-assigned ID,
	// used to correlate delivery callbacks.
	GetByExternalID(ctx context.Context, ch Channel, externalID string) (*Notification, error)

	// Claim atomically transitions a pending or due scheduled notification
	// to in_flight. Exactly one concurrent caller wins; the rest receive
	// ErrAlreadyClaimed. This is the single-writer guarantee for deliveries.
	Claim(ctx context.Context, id uuid.UUID, now time.Time) (*Notification, error)

	// ClaimDue claims up to limit notifications that are due for delivery at
	// now: pending rows with next_retry_at <= now (or none set) and
	// scheduled rows with scheduled_at <= now. Claimed rows come back with
	// status in_flight.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]Notification, error)

	// Transition persists a notification mutation and appends the matching
	// lifecycle event as a single logical write. A nil event updates the
	// notification only.
	Transition(ctx context.Context, n *Notification, ev *Event) error

	// Cancel moves a scheduled notification to cancelled. Cancelling a
	// notification in any other status returns ErrInvalidTransition.
	Cancel(ctx context.Context, id uuid.UUID, userID string, now time.Time) error

	// List returns a user's notifications, newest first.
	List(ctx context.Context, userID string, opts ListOptions) ([]Notification, error)

	// CountUnread returns the number of unread in-app notifications.
	CountUnread(ctx context.Context, userID string) (int, error)

	// MarkRead sets read_at on the given notifications.
	MarkRead(ctx context.Context, userID string, now time.Time, ids ...uuid.UUID) error

	// MarkAllRead sets read_at on every unread notification of the user.
	MarkAllRead(ctx context.Context, userID string, now time.Time) error
}

// ListOptions provides filtering and pagination for List.
type ListOptions struct {
	Channel    Channel  // filter by channel when non-empty
	Category   Category // filter by category when non-empty
	UnreadOnly bool
	Limit      int // 0 = no limit
	Offset     int
}

// EventStore is the append-only notification history.
type EventStore interface {
	// Append records a lifecycle or provider event.
	Append(ctx context.Context, ev Event) error

	// ListByNotification returns all events for a notification in append order.
	ListByNotification(ctx context.Context, id uuid.UUID) ([]Event, error)
}

// PreferenceStore looks up and upserts per-user delivery preferences.
type PreferenceStore interface {
	// GetPreference returns the preference for the exact (user, channel,
	// category) key, or nil when no row exists (meaning enabled with
	// defaults).
	GetPreference(ctx context.Context, userID string, ch Channel, cat Category) (*Preference, error)

	// ListPreferences returns all stored preferences of a user.
	ListPreferences(ctx context.Context, userID string) ([]Preference, error)

	// SetPreference upserts a preference row.
	SetPreference(ctx context.Context, p Preference) error
}

// EndpointStore manages the per-user channel registry.
type EndpointStore interface {
	// Upsert registers or updates an endpoint, idempotent per
	// (user, channel, address).
	Upsert(ctx context.Context, e Endpoint) error

	// Active returns the preferred eligible endpoint for (user, channel):
	// active, verified, most recently used first. Returns
	// ErrEndpointNotFound when none qualifies.
	Active(ctx context.Context, userID string, ch Channel) (*Endpoint, error)

	// Deactivate flags an endpoint inactive, e.g. after a permanent
	// provider rejection.
	Deactivate(ctx context.Context, userID string, ch Channel, address string) error

	// TouchUsed records a successful use of the endpoint.
	TouchUsed(ctx context.Context, userID string, ch Channel, address string, at time.Time) error
}
