// Package client implements the client-side reconciliation proxy: a
// local mirror of server-authoritative replicants over a WebSocket
// connection, with optimistic writes and rollback.
//
// # Critical Patterns
//
// CP-1: Optimistic Write, Authoritative Rollback
//   - Set applies the value locally and fires listeners before the
//     server round trip. If the server rejects the write, the proxy
//     reverts to its last synced value and re-notifies.
//
// CP-2: Snapshots Override, Echoes Are Idempotent
//   - An initial snapshot is adopted over locally held state (reconnect
//     recovery replays nothing), unless the same connection already
//     synced a newer revision: the snapshot lost a race against a
//     commit and is stale. A change whose revision does not exceed the
//     last synced revision is ignored.
//
// CP-3: Listeners Fire On Real Transitions
//   - Listeners receive (new, old) only when the two differ under
//     canonical-bytes equality, so echoed writes and redundant
//     snapshots cause no notification storms.
package client
