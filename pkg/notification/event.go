package notification

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies a lifecycle transition or provider callback.
type EventType string

const (
	EventCreated   EventType = "created"
	EventSent      EventType = "sent"
	EventDelivered EventType = "delivered"
	EventFailed    EventType = "failed"
	EventOpened    EventType = "opened"
	EventClicked   EventType = "clicked"
	EventBounced   EventType = "bounced"
)

// Event is one append-only history entry for a notification. Events are never
// mutated or deleted; ordering within a notification follows the order the
// transitions occurred.
type Event struct {
	ID             uuid.UUID      `json:"id"`
	NotificationID uuid.UUID      `json:"notification_id"`
	Type           EventType      `json:"type"`
	Data           map[string]any `json:"data,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}
