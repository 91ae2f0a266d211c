package engine

import (
	"context"
	"sort"

	"github.com/roach88/replicant/internal/replicant"
)

// Get returns the current value and revision for a key. A key nobody has
// seen before is materialized as an ephemeral replicant at revision 0:
// defaultValue if given, JSON null otherwise. The default only applies on
// this first materialization; later reads return the live value (CP-3).
func (e *Engine) Get(ctx context.Context, namespace, name string, defaultValue replicant.Value) (replicant.Value, uint64, error) {
	key := replicant.NewKey(namespace, name)
	if err := key.Validate(); err != nil {
		return nil, 0, &replicant.PersistenceError{Key: key, Op: "get", Err: err}
	}

	en := e.lockLive(key)
	defer en.mu.Unlock()

	found, err := e.load(ctx, key, en)
	if err != nil {
		return nil, 0, err
	}
	if !found && !en.loaded {
		// First sight of this key: ephemeral at revision 0, unvalidated
		// (a nil schema accepts everything).
		en.loaded = true
		en.value = defaultValue
		if en.value.IsZero() {
			en.value = replicant.Null
		}
	}
	return en.value, en.revision, nil
}

// Replicant returns the full persistent record for a key, or a
// NotFoundError if the key is ephemeral or unknown. Used by the API and
// CLI surfaces that need schema and timestamps, not just the value.
func (e *Engine) Replicant(ctx context.Context, namespace, name string) (*replicant.Replicant, error) {
	key := replicant.NewKey(namespace, name)

	pctx, cancel := e.persistCtx(ctx)
	defer cancel()

	rec, err := e.persistence.FindByKey(pctx, key.Namespace, key.Name)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, &replicant.NotFoundError{Key: key}
	}
	return rec, nil
}

// Namespaces lists every namespace with at least one persistent replicant.
func (e *Engine) Namespaces(ctx context.Context) ([]string, error) {
	pctx, cancel := e.persistCtx(ctx)
	defer cancel()
	return e.persistence.ListNamespaces(pctx)
}

// Names lists the persistent replicant names within a namespace, plus any
// live ephemeral keys in the same namespace.
func (e *Engine) Names(ctx context.Context, namespace string) ([]string, error) {
	pctx, cancel := e.persistCtx(ctx)
	defer cancel()

	names, err := e.persistence.ListNames(pctx, namespace)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		seen[n] = struct{}{}
	}

	e.mu.Lock()
	for key := range e.table {
		if key.Namespace != namespace {
			continue
		}
		if _, ok := seen[key.Name]; !ok {
			seen[key.Name] = struct{}{}
			names = append(names, key.Name)
		}
	}
	e.mu.Unlock()

	sort.Strings(names)
	return names, nil
}
