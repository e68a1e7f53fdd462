// Package notification defines the core domain model of the delivery engine:
// the Notification record and its lifecycle statuses, the append-only event
// log, per-user channel endpoints and delivery preferences, plus the storage
// interfaces the engine drives.
//
// The package ships two storage implementations:
//
//   - MemoryStore: in-memory, for development and tests
//   - PostgresStore: pgx-backed, the production system of record
//
// # Lifecycle
//
// A notification moves through a small state machine owned by the engine:
//
//	pending ──claim──▶ in_flight ──▶ sent ──▶ delivered
//	   ▲                   │           │
//	   └──── retryable ◀───┘           └──▶ failed (callback)
//	scheduled ──due──▶ in_flight       failed / cancelled are terminal
//
// Stores only provide the primitives (atomic claim, transactional status+event
// write); all transition decisions live in the engine package.
package notification
