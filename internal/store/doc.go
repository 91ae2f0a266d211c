// Package store provides the SQLite-backed persistence adapter for
// persistent replicants.
//
// The store implements replicant.Persistence:
//   - Replicants: current value, revision, and optional schema per key
//   - History: append-only log of prior states, cascade-deleted with the
//     owning replicant, prunable by retention count
//
// # Critical Patterns
//
// CP-1: Atomic Update
//   - Update runs read-current, append-history, write-new inside ONE
//     transaction; a failure anywhere rolls back everything
//
// CP-2: Monotonic Revisions
//   - revision advances by exactly 1 per committed update, enforced by
//     performing the increment inside the update transaction
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: history cascade depends on it
package store
