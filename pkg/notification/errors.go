package notification

import "errors"

var (
	// ErrNotFound is returned when a notification does not exist.
	ErrNotFound = errors.New("notification not found")

	// ErrAlreadyClaimed is returned when a claim races another worker and
	// loses; the notification is being delivered elsewhere.
	ErrAlreadyClaimed = errors.New("notification already claimed")

	// ErrInvalidTransition is returned when a status update would violate
	// the lifecycle state machine (e.g. advancing a terminal notification).
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrEndpointNotFound is returned when a user has no eligible endpoint
	// for the requested channel.
	ErrEndpointNotFound = errors.New("no active endpoint for channel")
)
