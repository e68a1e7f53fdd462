// Package engine is the orchestrator of the notification delivery system.
// It accepts send requests, applies preference and rate-limit policy,
// persists notifications, dispatches them through the channel adapter
// registry and drives the retry state machine on failure.
//
// # Delivery flow
//
//	Send ─▶ preference gate ─▶ rate-limit gate ─▶ persist (pending|scheduled)
//	      ─▶ claim ─▶ resolve endpoint ─▶ render ─▶ adapter send
//	      ─▶ sent + event            (success)
//	      ─▶ pending + next_retry_at (transient failure, retries left)
//	      ─▶ failed + event          (permanent or exhausted)
//
// The Scheduler re-enters the same delivery path for due retries and due
// scheduled notifications. A store-level claim step moves rows to in_flight
// before dispatch, so no two delivery attempts for one notification ever run
// concurrently.
//
// Provider delivery callbacks and open/click tracking arrive through
// HandleCallback, TrackOpen and TrackClick; Routes exposes them over
// HTTP with HMAC signature verification on the callback intake.
package engine
