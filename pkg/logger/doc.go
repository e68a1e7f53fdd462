// Package logger provides the module's slog setup: a small factory for
// configured *slog.Logger instances and typed attribute helpers for the
// identifiers that recur across the delivery engine (notification IDs,
// channels, endpoints, retry counts).
//
// Using the helpers keeps attribute keys consistent between packages, which
// is what makes the structured logs joinable in aggregation systems.
package logger
