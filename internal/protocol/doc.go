// Package protocol defines the JSON message envelopes exchanged between
// the server and its clients over a persistent bidirectional channel.
//
// Every message is scoped to one (namespace, name) key:
//
//	client -> server: subscribe, unsubscribe, set
//	server -> client: initial, change, error
//
// A change envelope with deleted=true is the deletion notice; subscribers
// holding it should consider their subscription for that key void.
//
// The wire format is pinned by golden files in testdata/golden; breaking
// it breaks every deployed dashboard and overlay.
package protocol
