// Package server exposes the replicant engine over WebSocket. Each
// connection gets a read loop that turns wire messages into engine and
// registry calls, and a write pump that drains a bounded outbound queue.
//
// # Critical Patterns
//
// CP-1: One Writer Per Socket
//   - Only the write pump touches the socket for writes (data and pings).
//     Everything else enqueues into the connection's buffer; a full
//     buffer counts as a dead subscriber and the connection is torn down.
//
// CP-2: Subscribe Answers With A Snapshot
//   - A subscribe registers the sink first and reads the engine second,
//     so the initial snapshot plus subsequent changes cover every commit:
//     a commit racing the subscribe appears in the snapshot, as a change,
//     or both - never in neither.
//
// CP-3: Errors Go To The Sender Only
//   - A failed set produces an error envelope on the originating
//     connection and nothing anywhere else. Broadcasts carry only
//     committed state.
package server
