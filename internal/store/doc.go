// Package store provides SQLite-backed persistence for worker registries
// and serialized state snapshots.
//
// Two tables:
//   - objects: the values a worker has registered, keyed by (worker, id).
//     Re-registering an identity replaces its payload.
//   - states: serialized state and plan documents, content-addressed by
//     their digest. Writing the same document twice is a no-op.
//
// All list queries order by seq ASC, then identity COLLATE BINARY, so
// results are stable across runs. seq is supplied by the caller's logical
// clock.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
