// Package engine implements the authoritative replicant store: the
// in-memory table of live replicants, per-key write serialization,
// schema validation, transactional commit through the persistence
// adapter, and the post-commit hand-off to the change notifier.
//
// # Critical Patterns
//
// CP-1: Per-Key Exclusive Section
//   - All of validate -> commit -> cache-update runs under one mutex per
//     key, held across the persistence call. Writes to the same key are
//     totally ordered; writes to different keys never block each other.
//
// CP-2: Broadcast Follows Commit
//   - The notifier is handed a change only after the commit succeeded,
//     still inside the key's section so fan-out order equals commit
//     order. A failed commit leaves the cache untouched and emits
//     nothing.
//
// CP-3: Cache Equals Last Commit
//   - A read never observes a value whose revision exceeds what was
//     durably committed, and never a stale value once a write in this
//     process completed. Reads await only their own key's in-flight
//     section.
//
// Ephemeral keys (materialized lazily by Get) live purely in the table:
// they skip persistence and bump their revision under the same section.
package engine
