// Package harness is the conformance harness for the synchronization
// engine: YAML scenarios drive a real engine, store, and subscription
// registry, and the resulting trace is compared against golden files.
//
// A scenario declares replicants, subscribers, and a flow of operations.
// Subscribers are recording sinks registered with the registry exactly
// the way server connections are, so fan-out order and drop semantics
// are exercised for real. Deliveries are grouped per subscriber in the
// trace because cross-subscriber delivery order is unspecified.
//
// Every scenario runs against a fresh in-memory database, so runs are
// isolated and reproducible.
package harness
