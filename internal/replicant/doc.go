// Package replicant defines the core data model for the synchronization
// engine: keys, opaque JSON value documents, replicant records, history
// entries, the persistence contract, and the error taxonomy shared by the
// engine, transports, and CLI.
//
// # Critical Patterns
//
// CP-1: Canonical Value Bytes
//   - Every Value is normalized to canonical JSON at the boundary
//   - Deep equality and storage comparisons are plain byte comparisons
//
// CP-2: Monotonic Revisions
//   - A replicant's revision starts at 0 and advances by exactly 1 per
//     committed write; it never skips and never decreases
//
// CP-3: History Records Prior State
//   - Each history entry carries the value and revision as they were
//     immediately BEFORE the update that advanced the revision
//
// Keys are NFC-normalized so that visually identical namespace/name pairs
// map to the same replicant regardless of the client's Unicode encoding.
package replicant
