package engine

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/replicant/internal/replicant"
	"github.com/roach88/replicant/internal/schema"
)

// Notifier receives committed changes for fan-out. Implementations must
// not block: the engine calls these inside the key's exclusive section.
type Notifier interface {
	Publish(key replicant.Key, value replicant.Value, revision uint64)
	PublishDeleted(key replicant.Key)
}

// nopNotifier discards changes. Used when no notifier is attached
// (CLI commands operating on a database offline).
type nopNotifier struct{}

func (nopNotifier) Publish(replicant.Key, replicant.Value, uint64) {}
func (nopNotifier) PublishDeleted(replicant.Key)                   {}

// Options tunes engine behavior.
type Options struct {
	// PersistTimeout bounds every persistence call so a stalled database
	// fails the operation instead of hanging the key's section forever.
	// Zero means DefaultPersistTimeout.
	PersistTimeout time.Duration
}

// DefaultPersistTimeout is the persistence deadline when none is set.
const DefaultPersistTimeout = 5 * time.Second

// Engine is the authoritative replicant table. It is an explicitly owned
// value: construct one and pass it to the transport and API layers, never
// ambient state.
type Engine struct {
	persistence replicant.Persistence
	validator   schema.Validator
	notifier    Notifier
	timeout     time.Duration

	mu    sync.Mutex
	table map[replicant.Key]*entry
}

// entry is one live replicant. Its mutex is the key's exclusive section
// (CP-1): held across validate, commit, cache update, and the notifier
// hand-off.
type entry struct {
	mu sync.Mutex

	// loaded flips once the entry was resolved against persistence (or
	// materialized as ephemeral). Guarded by mu.
	loaded bool

	// persistent entries carry the storage row id; ephemeral ones have
	// id == "" and never touch persistence.
	persistent bool
	id         string

	value    replicant.Value
	revision uint64
	schema   *schema.Schema

	// deleted marks an entry torn out of the table while writers were
	// queued on mu. Queued operations observe it and start over.
	deleted bool
}

// New creates an engine over the given persistence adapter. notifier may
// be nil for offline use.
func New(persistence replicant.Persistence, validator schema.Validator, notifier Notifier, opts Options) *Engine {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	timeout := opts.PersistTimeout
	if timeout <= 0 {
		timeout = DefaultPersistTimeout
	}
	return &Engine{
		persistence: persistence,
		validator:   validator,
		notifier:    notifier,
		timeout:     timeout,
		table:       make(map[replicant.Key]*entry),
	}
}

// entryFor returns the live entry for a key, inserting an unloaded
// placeholder on first access. The table lock is never held across I/O.
func (e *Engine) entryFor(key replicant.Key) *entry {
	e.mu.Lock()
	defer e.mu.Unlock()

	en := e.table[key]
	if en == nil {
		en = &entry{}
		e.table[key] = en
	}
	return en
}

// lockLive acquires a key's section, restarting if the entry was deleted
// while this caller was queued behind the deleting writer.
func (e *Engine) lockLive(key replicant.Key) *entry {
	for {
		en := e.entryFor(key)
		en.mu.Lock()
		if !en.deleted {
			return en
		}
		en.mu.Unlock()
	}
}

// remove tears an entry out of the table. Caller holds en.mu.
func (e *Engine) remove(key replicant.Key, en *entry) {
	en.deleted = true
	e.mu.Lock()
	if e.table[key] == en {
		delete(e.table, key)
	}
	e.mu.Unlock()
}

// persistCtx derives the bounded context for a persistence call.
func (e *Engine) persistCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.timeout)
}

// load resolves an unloaded entry against persistence. Caller holds
// en.mu. Returns whether a persistent record was found.
func (e *Engine) load(ctx context.Context, key replicant.Key, en *entry) (bool, error) {
	if en.loaded {
		return true, nil
	}

	pctx, cancel := e.persistCtx(ctx)
	defer cancel()

	rec, err := e.persistence.FindByKey(pctx, key.Namespace, key.Name)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}

	compiled, err := e.validator.Compile(rec.Schema)
	if err != nil {
		return false, &replicant.PersistenceError{Key: key, Op: "load", Err: err}
	}

	en.loaded = true
	en.persistent = true
	en.id = rec.ID
	en.value = rec.Value
	en.revision = rec.Revision
	en.schema = compiled
	return true, nil
}
