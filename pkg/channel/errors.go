package channel

import (
	"context"
	"errors"
	"net"
)

var (
	// ErrInvalidEndpoint indicates the endpoint fails the adapter's format
	// validation. Terminal; no network call was made.
	ErrInvalidEndpoint = errors.New("invalid endpoint")

	// ErrPermanent indicates the provider rejected the delivery in a way
	// retrying cannot fix: unreachable address, unsubscribed recipient,
	// revoked device token.
	ErrPermanent = errors.New("permanent delivery failure")

	// ErrTransient indicates a failure worth retrying: network errors,
	// timeouts, provider overload or upstream rate limiting.
	ErrTransient = errors.New("transient delivery failure")

	// ErrUnknownChannel is returned by the registry for channels without a
	// registered adapter.
	ErrUnknownChannel = errors.New("no adapter registered for channel")
)

// Retryable classifies an adapter error. Timeouts and recognizable network
// failures count as transient even when an adapter forgot to wrap them;
// anything else unclassified is treated as permanent so unknown failure
// modes cannot retry forever.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	if errors.Is(err, ErrInvalidEndpoint) || errors.Is(err, ErrPermanent) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

// Permanent reports whether the failure should deactivate the endpoint to
// stop repeated waste on a dead address.
func Permanent(err error) bool {
	return errors.Is(err, ErrPermanent) || errors.Is(err, ErrInvalidEndpoint)
}
