package client

import (
	"sync"

	"github.com/golang/glog"

	"github.com/roach88/replicant/internal/protocol"
	"github.com/roach88/replicant/internal/replicant"
)

// State is a proxy's synchronization state for its key.
type State int

const (
	// Disconnected: no live transport. The local value stays readable.
	Disconnected State = iota

	// Subscribing: subscribe sent, initial snapshot not yet received.
	// The value holds the caller-supplied default or the last local
	// state from before a reconnect.
	Subscribing

	// Synced: the local value equals the last authoritative state the
	// server sent, modulo in-flight optimistic writes.
	Synced
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Subscribing:
		return "subscribing"
	case Synced:
		return "synced"
	default:
		return "unknown"
	}
}

// ChangeListener observes value transitions. oldValue is what the proxy
// held immediately before the transition.
type ChangeListener func(newValue, oldValue replicant.Value)

// Proxy mirrors one replicant key. All methods are safe for concurrent
// use; listeners run on the proxy's dispatching goroutine and must not
// call back into the proxy synchronously.
type Proxy struct {
	key          replicant.Key
	client       *Client
	defaultValue replicant.Value

	mu       sync.Mutex
	state    State
	value    replicant.Value
	revision uint64

	// synced holds the last authoritative state for rollback (CP-1).
	synced    replicant.Value
	syncedRev uint64

	listeners    map[int]ChangeListener
	nextListener int
	destroyed    bool
}

func newProxy(c *Client, key replicant.Key, defaultValue replicant.Value) *Proxy {
	return &Proxy{
		key:          key,
		client:       c,
		defaultValue: defaultValue,
		state:        Disconnected,
		value:        defaultValue,
		synced:       defaultValue,
		listeners:    make(map[int]ChangeListener),
	}
}

// Key returns the replicant key the proxy mirrors.
func (p *Proxy) Key() replicant.Key { return p.key }

// Get returns the proxy's current local value and revision.
func (p *Proxy) Get() (replicant.Value, uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, p.revision
}

// State returns the proxy's synchronization state.
func (p *Proxy) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Set applies value locally and fires listeners immediately, then sends
// the write to the server (CP-1). The returned error covers transport
// failures only; a server-side rejection arrives later as a rollback.
func (p *Proxy) Set(value replicant.Value) error {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return &replicant.TransportError{Err: errDestroyed}
	}
	old := p.value
	p.value = value
	notify := p.snapshotListeners()
	p.mu.Unlock()

	if !value.Equal(old) {
		for _, fn := range notify {
			fn(value, old)
		}
	}
	return p.client.send(protocol.NewSet(p.key, value))
}

// OnChange registers a listener and returns its removal handle. Calling
// the handle more than once is safe.
func (p *Proxy) OnChange(fn ChangeListener) (remove func()) {
	p.mu.Lock()
	id := p.nextListener
	p.nextListener++
	p.listeners[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}
}

// Destroy unsubscribes the key, clears listeners, and detaches the proxy
// from its client. The proxy is unusable afterwards.
func (p *Proxy) Destroy() {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}
	p.destroyed = true
	p.listeners = make(map[int]ChangeListener)
	p.mu.Unlock()

	p.client.forget(p.key)
	if err := p.client.send(protocol.NewUnsubscribe(p.key)); err != nil {
		glog.V(1).Infof("unsubscribe %s on destroy failed: %v", p.key, err)
	}
}

// handleInitial adopts an authoritative snapshot (CP-2). A commit can
// land between the server's snapshot read and the snapshot's enqueue,
// putting a newer change ahead of the initial on the wire; a snapshot
// older than what this connection already synced is stale and ignored.
// After a reconnect the proxy is back in Subscribing, so the fresh
// snapshot stays authoritative there.
func (p *Proxy) handleInitial(value replicant.Value, revision uint64) {
	p.mu.Lock()
	if p.state == Synced && revision < p.syncedRev {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.adopt(value, revision)
}

// handleChange adopts a committed change unless its revision does not
// exceed what is already synced - the idempotent echo case (CP-2).
func (p *Proxy) handleChange(value replicant.Value, revision uint64) {
	p.mu.Lock()
	if p.state == Synced && revision <= p.syncedRev {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.adopt(value, revision)
}

// handleDeleted resets the proxy to its default: the server destroyed
// the replicant, so revision tracking starts over.
func (p *Proxy) handleDeleted() {
	p.mu.Lock()
	old := p.value
	p.value = p.defaultValue
	p.revision = 0
	p.synced = p.defaultValue
	p.syncedRev = 0
	p.state = Subscribing
	reset := p.value
	notify := p.snapshotListeners()
	p.mu.Unlock()

	if !reset.Equal(old) {
		for _, fn := range notify {
			fn(reset, old)
		}
	}
}

// handleError rolls an optimistic write back to the last synced state
// and re-notifies (CP-1).
func (p *Proxy) handleError(code, reason string) {
	glog.V(1).Infof("server rejected write to %s: %s: %s", p.key, code, reason)

	p.mu.Lock()
	old := p.value
	p.value = p.synced
	p.revision = p.syncedRev
	rolled := p.value
	notify := p.snapshotListeners()
	p.mu.Unlock()

	if !rolled.Equal(old) {
		for _, fn := range notify {
			fn(rolled, old)
		}
	}
}

// adopt installs an authoritative (value, revision) and notifies on real
// transitions only (CP-3).
func (p *Proxy) adopt(value replicant.Value, revision uint64) {
	p.mu.Lock()
	old := p.value
	p.value = value
	p.revision = revision
	p.synced = value
	p.syncedRev = revision
	p.state = Synced
	notify := p.snapshotListeners()
	p.mu.Unlock()

	if !value.Equal(old) {
		for _, fn := range notify {
			fn(value, old)
		}
	}
}

func (p *Proxy) enterSubscribing() {
	p.mu.Lock()
	p.state = Subscribing
	p.mu.Unlock()
}

func (p *Proxy) enterDisconnected() {
	p.mu.Lock()
	p.state = Disconnected
	p.mu.Unlock()
}

// snapshotListeners copies the listener set. Caller holds p.mu; the copy
// lets listeners run outside the lock.
func (p *Proxy) snapshotListeners() []ChangeListener {
	out := make([]ChangeListener, 0, len(p.listeners))
	for _, fn := range p.listeners {
		out = append(out, fn)
	}
	return out
}

type destroyedError struct{}

func (destroyedError) Error() string { return "proxy destroyed" }

var errDestroyed = destroyedError{}
