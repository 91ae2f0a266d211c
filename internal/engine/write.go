package engine

import (
	"context"

	"github.com/roach88/replicant/internal/replicant"
)

// Create registers a new persistent replicant with a default value and an
// optional JSON Schema. The default is validated against the schema, so a
// bundle cannot declare a replicant it could never set.
func (e *Engine) Create(ctx context.Context, namespace, name string, defaultValue, schemaDoc replicant.Value) (*replicant.Replicant, error) {
	key := replicant.NewKey(namespace, name)
	if err := key.Validate(); err != nil {
		return nil, &replicant.PersistenceError{Key: key, Op: "create", Err: err}
	}
	if defaultValue.IsZero() {
		defaultValue = replicant.Null
	}

	compiled, err := e.validator.Compile(schemaDoc)
	if err != nil {
		return nil, &replicant.PersistenceError{Key: key, Op: "create", Err: err}
	}
	if err := compiled.Validate(key, defaultValue); err != nil {
		return nil, err
	}

	en := e.lockLive(key)
	defer en.mu.Unlock()

	if found, err := e.load(ctx, key, en); err != nil {
		return nil, err
	} else if found || en.loaded {
		return nil, &replicant.PersistenceError{Key: key, Op: "create",
			Err: errAlreadyExists}
	}

	pctx, cancel := e.persistCtx(ctx)
	defer cancel()

	rec, err := e.persistence.Create(pctx, key.Namespace, key.Name, defaultValue, schemaDoc)
	if err != nil {
		return nil, err
	}

	en.loaded = true
	en.persistent = true
	en.id = rec.ID
	en.value = rec.Value
	en.revision = rec.Revision
	en.schema = compiled
	return rec, nil
}

// Set commits a new value for a key.
//
// Order of operations (CP-1, CP-2):
//  1. validate against the key's schema - a violation changes nothing
//  2. under the key's exclusive section, commit through persistence
//     (ephemeral keys bump the in-memory revision instead)
//  3. update the cache
//  4. hand the committed (value, revision) to the notifier
//
// A persistence failure leaves the cache untouched and broadcasts
// nothing. Setting a key that was never created and never materialized
// returns a NotFoundError.
func (e *Engine) Set(ctx context.Context, namespace, name string, value replicant.Value, actor string) (replicant.Value, uint64, error) {
	key := replicant.NewKey(namespace, name)
	if err := key.Validate(); err != nil {
		return nil, 0, &replicant.PersistenceError{Key: key, Op: "set", Err: err}
	}

	en := e.lockLive(key)
	defer en.mu.Unlock()

	found, err := e.load(ctx, key, en)
	if err != nil {
		return nil, 0, err
	}
	if !found && !en.loaded {
		e.dropUnloaded(key, en)
		return nil, 0, &replicant.NotFoundError{Key: key}
	}

	if err := en.schema.Validate(key, value); err != nil {
		return nil, 0, err
	}

	if en.persistent {
		pctx, cancel := e.persistCtx(ctx)
		defer cancel()

		rec, err := e.persistence.Update(pctx, en.id, value, actor)
		if err != nil {
			if replicant.IsNotFound(err) {
				// Row vanished underneath us (external delete).
				return nil, 0, &replicant.NotFoundError{Key: key}
			}
			return nil, 0, err
		}
		en.value = rec.Value
		en.revision = rec.Revision
	} else {
		// Ephemeral: same exclusive section, no persistence (CP-1).
		en.value = value
		en.revision++
	}

	// CP-2: publish inside the section, after the commit. The notifier
	// only enqueues, so this cannot stall the writer.
	e.notifier.Publish(key, en.value, en.revision)
	return en.value, en.revision, nil
}

// Delete destroys a replicant: cache and persistence for persistent keys,
// cache only for ephemeral ones. Subscribers receive a deletion notice
// after the removal; their subscriptions for the key are void afterwards.
func (e *Engine) Delete(ctx context.Context, namespace, name string) error {
	key := replicant.NewKey(namespace, name)
	if err := key.Validate(); err != nil {
		return &replicant.PersistenceError{Key: key, Op: "delete", Err: err}
	}

	en := e.lockLive(key)
	defer en.mu.Unlock()

	found, err := e.load(ctx, key, en)
	if err != nil {
		return err
	}
	if !found && !en.loaded {
		e.dropUnloaded(key, en)
		return &replicant.NotFoundError{Key: key}
	}

	if en.persistent {
		pctx, cancel := e.persistCtx(ctx)
		defer cancel()

		if err := e.persistence.Delete(pctx, key.Namespace, key.Name); err != nil && !replicant.IsNotFound(err) {
			return err
		}
	}

	e.remove(key, en)
	e.notifier.PublishDeleted(key)
	return nil
}

// dropUnloaded discards a placeholder entry that resolved to nothing, so
// failed lookups do not accumulate in the table. Caller holds en.mu.
func (e *Engine) dropUnloaded(key replicant.Key, en *entry) {
	if !en.loaded {
		e.remove(key, en)
	}
}

// errAlreadyExists distinguishes double-create from storage failures.
var errAlreadyExists = &alreadyExistsError{}

type alreadyExistsError struct{}

func (*alreadyExistsError) Error() string { return "replicant already exists" }
