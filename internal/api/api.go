// Package api is the consumable façade the GraphQL/REST layers sit on:
// plain request/response calls over the engine plus push subscriptions
// backed by the registry. It holds no state of its own.
package api

import (
	"context"

	"github.com/roach88/replicant/internal/engine"
	"github.com/roach88/replicant/internal/protocol"
	"github.com/roach88/replicant/internal/pubsub"
	"github.com/roach88/replicant/internal/replicant"
	"github.com/roach88/replicant/internal/store"
)

// API bundles the engine, its registry, and the concrete store (for
// history reads, which bypass the engine's cache entirely).
type API struct {
	engine   *engine.Engine
	registry *pubsub.Registry
	store    *store.Store
}

// New creates the façade. registry must be the engine's notifier.
func New(eng *engine.Engine, registry *pubsub.Registry, st *store.Store) *API {
	return &API{engine: eng, registry: registry, store: st}
}

// List returns every persistent replicant, optionally restricted to one
// namespace. Ephemeral replicants are not listed: they have no record
// worth exposing beyond their live value.
func (a *API) List(ctx context.Context, namespace string) ([]*replicant.Replicant, error) {
	namespaces := []string{namespace}
	if namespace == "" {
		var err error
		namespaces, err = a.engine.Namespaces(ctx)
		if err != nil {
			return nil, err
		}
	}

	out := make([]*replicant.Replicant, 0)
	for _, ns := range namespaces {
		names, err := a.store.ListNames(ctx, ns)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			rec, err := a.store.FindByKey(ctx, ns, name)
			if err != nil {
				return nil, err
			}
			if rec != nil {
				out = append(out, rec)
			}
		}
	}
	return out, nil
}

// Create registers a persistent replicant and returns its record.
func (a *API) Create(ctx context.Context, namespace, name string, defaultValue, schemaDoc replicant.Value) (*replicant.Replicant, error) {
	return a.engine.Create(ctx, namespace, name, defaultValue, schemaDoc)
}

// Get returns the persistent record for a key, or a NotFoundError.
func (a *API) Get(ctx context.Context, namespace, name string) (*replicant.Replicant, error) {
	return a.engine.Replicant(ctx, namespace, name)
}

// Value returns the live (value, revision) for a key, materializing an
// ephemeral replicant on first sight like any subscriber would.
func (a *API) Value(ctx context.Context, namespace, name string) (replicant.Value, uint64, error) {
	return a.engine.Get(ctx, namespace, name, nil)
}

// Set commits a value and returns the resulting record. For ephemeral
// keys the record is synthesized from the live state.
func (a *API) Set(ctx context.Context, namespace, name string, value replicant.Value, actor string) (*replicant.Replicant, error) {
	committed, revision, err := a.engine.Set(ctx, namespace, name, value, actor)
	if err != nil {
		return nil, err
	}

	rec, err := a.engine.Replicant(ctx, namespace, name)
	if replicant.IsNotFound(err) {
		return &replicant.Replicant{
			Namespace: namespace,
			Name:      name,
			Value:     committed,
			Revision:  revision,
		}, nil
	}
	return rec, err
}

// Delete destroys a replicant. Returns false without error when the key
// did not exist, true when it was removed.
func (a *API) Delete(ctx context.Context, namespace, name string) (bool, error) {
	err := a.engine.Delete(ctx, namespace, name)
	if replicant.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// History returns a replicant's audit log, oldest first.
func (a *API) History(ctx context.Context, namespace, name string) ([]replicant.HistoryEntry, error) {
	return a.store.ReadHistory(ctx, namespace, name)
}

// PruneHistory trims every replicant's history to its keepCount most
// recent entries and reports how many rows were removed.
func (a *API) PruneHistory(ctx context.Context, keepCount int) (int64, error) {
	return a.store.PruneHistory(ctx, keepCount)
}

// Watch attaches an in-process listener for a key, the push-subscription
// equivalent of a client subscribe. fn runs on publisher goroutines and
// must return quickly. The handle removes the listener; it is safe to
// call more than once.
func (a *API) Watch(namespace, name string, fn func(msg protocol.Message)) (unsubscribe func()) {
	return a.registry.Watch(replicant.NewKey(namespace, name), fn)
}
