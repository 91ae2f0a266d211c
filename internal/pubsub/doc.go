// Package pubsub tracks which connections are interested in which
// replicant key and fans committed changes out to them.
//
// # Critical Patterns
//
// CP-1: Per-Key FIFO
//   - For one key, every subscriber observes changes in publish order.
//     Publishers call Publish while holding the engine's per-key section,
//     which serializes delivery for that key, so the order cannot invert.
//     Send itself runs outside the registry lock: a sink callback is
//     allowed to re-enter the registry.
//
// CP-2: Best-Effort Delivery
//   - Send must never block. A sink whose buffer is saturated or whose
//     connection closed is dropped from the registry instead of stalling
//     the publisher. There is no replay: a dropped or reconnecting client
//     recovers by resubscribing for a fresh snapshot.
//
// The registry has its own lock, independent of the engine's per-key
// locks; subscribe/unsubscribe never touch replicant values.
package pubsub
