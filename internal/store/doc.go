// Package store provides SQLite-backed durable storage for scheduler event
// logs.
//
// The store is an append-only log with two tables:
//   - runs: one row per scheduler run (name, engine version, tick count,
//     trace digest)
//   - events: the run's spawn, visit, despawn, and error events
//
// # Ordering
//
// Events are keyed by (run_id, seq). seq comes from the scheduler's logical
// clock, never from wall time, and every query orders by seq ASC, so a
// stored log reads back in the order it was recorded.
//
// # Idempotency
//
// Writing an event that is already stored is a no-op, so a recorder can
// retry a batch after a failure without duplicating entries.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
