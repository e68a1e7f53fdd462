// Package channel defines the pluggable delivery adapters of the engine:
// one Adapter per delivery medium (email, SMS, the three push variants
// and in-app), all behind a single Send contract.
//
// Adapters own provider-specific concerns end to end. Each one validates the
// endpoint format before any network call, enforces its own send timeout and
// normalizes every provider failure into the package's error taxonomy:
//
//   - ErrInvalidEndpoint, ErrPermanent: terminal, never retried
//   - ErrTransient: worth retrying (network blips, provider hiccups, timeouts)
//
// The engine classifies adapter errors with Retryable and never sees a raw
// provider error. The Registry maps channel tags to adapter instances and is
// assembled once at startup.
package channel
