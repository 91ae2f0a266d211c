package pubsub

import (
	"sync"

	"github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/roach88/replicant/internal/protocol"
	"github.com/roach88/replicant/internal/replicant"
)

// Sink receives messages for one connection. Send must not block:
// implementations enqueue into a bounded buffer and report false when the
// buffer is full or the connection is gone, at which point the registry
// drops every registration for that sink.
type Sink interface {
	// ID identifies the connection. Resubscribing under the same ID
	// replaces the previous registration.
	ID() string

	// Send enqueues a message for delivery. Must return immediately.
	Send(msg protocol.Message) bool
}

// Registry is the subscription table and change notifier.
// The zero value is not usable; create with NewRegistry.
type Registry struct {
	mu     sync.Mutex
	byKey  map[replicant.Key]map[string]Sink
	byConn map[string]map[replicant.Key]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byKey:  make(map[replicant.Key]map[string]Sink),
		byConn: make(map[string]map[replicant.Key]struct{}),
	}
}

// Subscribe registers a sink's interest in a key. Idempotent: subscribing
// an already-subscribed sink replaces the stale registration and never
// causes duplicate delivery. The caller pairs this with a point-in-time
// read of the engine for the initial snapshot.
func (r *Registry) Subscribe(sink Sink, key replicant.Key) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sinks := r.byKey[key]
	if sinks == nil {
		sinks = make(map[string]Sink)
		r.byKey[key] = sinks
	}
	sinks[sink.ID()] = sink

	keys := r.byConn[sink.ID()]
	if keys == nil {
		keys = make(map[replicant.Key]struct{})
		r.byConn[sink.ID()] = keys
	}
	keys[key] = struct{}{}
}

// Unsubscribe removes one registration. No-op if absent.
func (r *Registry) Unsubscribe(connID string, key replicant.Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(connID, key)
}

// UnsubscribeAll removes every registration for a connection. Invoked on
// disconnect. No-op for unknown connections.
func (r *Registry) UnsubscribeAll(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key := range r.byConn[connID] {
		r.removeLocked(connID, key)
	}
}

// Publish delivers a committed change to every sink registered for the
// key. Sinks that cannot accept the message are dropped (CP-2).
func (r *Registry) Publish(key replicant.Key, value replicant.Value, revision uint64) {
	r.deliver(key, protocol.NewChange(key, value, revision))
}

// PublishDeleted delivers the deletion notice for a key and then voids all
// of its subscriptions: a deleted replicant has nothing left to observe.
func (r *Registry) PublishDeleted(key replicant.Key) {
	r.deliver(key, protocol.NewDeleted(key))

	r.mu.Lock()
	defer r.mu.Unlock()
	for connID := range r.byKey[key] {
		r.removeLocked(connID, key)
	}
}

// Subscribers returns the number of live registrations for a key.
func (r *Registry) Subscribers(key replicant.Key) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byKey[key])
}

// Watch registers an in-process listener for a key, for callers that live
// inside the server (API push subscriptions). fn runs on the publisher's
// goroutine and must return quickly. The returned handle removes the
// registration; calling it more than once is safe.
func (r *Registry) Watch(key replicant.Key, fn func(msg protocol.Message)) (unsubscribe func()) {
	sink := &funcSink{id: "watch-" + uuid.NewString(), fn: fn}
	r.Subscribe(sink, key)

	var once sync.Once
	return func() {
		once.Do(func() { r.Unsubscribe(sink.id, key) })
	}
}

// deliver fans one message out. The key's sinks are snapshotted under
// r.mu and Send runs outside it, so a sink callback may re-enter the
// registry (a Watch listener calling its own unsubscribe handle).
// Per-key FIFO (CP-1) holds because the engine publishes each key's
// commits from inside that key's exclusive section, serializing the
// deliver calls themselves.
func (r *Registry) deliver(key replicant.Key, msg protocol.Message) {
	r.mu.Lock()
	sinks := make([]Sink, 0, len(r.byKey[key]))
	for _, sink := range r.byKey[key] {
		sinks = append(sinks, sink)
	}
	r.mu.Unlock()

	var dropped []string
	for _, sink := range sinks {
		if !sink.Send(msg) {
			glog.V(1).Infof("dropping saturated subscriber %s for %s", sink.ID(), key)
			dropped = append(dropped, sink.ID())
		}
	}
	if len(dropped) == 0 {
		return
	}

	r.mu.Lock()
	for _, connID := range dropped {
		r.removeLocked(connID, key)
	}
	r.mu.Unlock()
}

// removeLocked deletes one registration. Caller holds r.mu.
func (r *Registry) removeLocked(connID string, key replicant.Key) {
	if sinks := r.byKey[key]; sinks != nil {
		delete(sinks, connID)
		if len(sinks) == 0 {
			delete(r.byKey, key)
		}
	}
	if keys := r.byConn[connID]; keys != nil {
		delete(keys, key)
		if len(keys) == 0 {
			delete(r.byConn, connID)
		}
	}
}

// funcSink adapts a callback to the Sink interface for Watch.
type funcSink struct {
	id string
	fn func(msg protocol.Message)
}

func (s *funcSink) ID() string { return s.id }

func (s *funcSink) Send(msg protocol.Message) bool {
	s.fn(msg)
	return true
}
