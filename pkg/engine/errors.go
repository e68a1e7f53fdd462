package engine

import "errors"

var (
	// ErrStoreUnavailable wraps unexpected storage failures. Expected
	// failure classes (policy blocks, delivery failures) never surface as
	// errors; they come back inside the structured result.
	ErrStoreUnavailable = errors.New("notification store unavailable")

	// ErrUnknownExternalID is returned when a delivery callback references
	// an external ID no notification carries.
	ErrUnknownExternalID = errors.New("unknown external id")

	// ErrInvalidSignature indicates callback authenticity verification
	// failed.
	ErrInvalidSignature = errors.New("invalid callback signature")

	// ErrNotCancellable is returned when Cancel targets a notification
	// that is not in the scheduled state.
	ErrNotCancellable = errors.New("notification is not cancellable")
)

// Structured result reasons for expected failure classes.
const (
	ReasonInvalidRequest    = "invalid_request"
	ReasonBlockedByPref     = "blocked_by_preference"
	ReasonRateLimitExceeded = "rate_limit_exceeded"
	ReasonNoActiveChannel   = "no_active_channel"
	ReasonDeliveryFailed    = "delivery_failed"
)
