package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/replicant/internal/replicant"
)

// Create inserts a new replicant at revision 0.
// The value is stored in canonical JSON form; schema may be zero.
// Creating a key that already exists returns a PersistenceError wrapping
// the UNIQUE constraint violation.
func (s *Store) Create(ctx context.Context, namespace, name string, value, schema replicant.Value) (*replicant.Replicant, error) {
	key := replicant.NewKey(namespace, name)
	if err := key.Validate(); err != nil {
		return nil, &replicant.PersistenceError{Key: key, Op: "create", Err: err}
	}

	now := s.now()
	rec := &replicant.Replicant{
		ID:           uuid.NewString(),
		Namespace:    key.Namespace,
		Name:         key.Name,
		Value:        value,
		Revision:     0,
		Schema:       schema,
		DefaultValue: value,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO replicants
		(id, namespace, name, value, revision, schema, default_value, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.Namespace,
		rec.Name,
		marshalValue(rec.Value),
		marshalNullableValue(rec.Schema),
		marshalNullableValue(rec.DefaultValue),
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return nil, &replicant.PersistenceError{Key: key, Op: "create", Err: err}
	}

	return rec, nil
}

// Update atomically advances a replicant to a new value.
//
// Inside ONE transaction (CP-1):
//  1. read the current value and revision
//  2. append a history entry carrying that prior value and revision
//  3. write newValue with revision+1 and a fresh updated_at
//
// Partial application is impossible: any failure rolls back the whole
// transaction and the caller observes the pre-update state.
func (s *Store) Update(ctx context.Context, id string, newValue replicant.Value, actor string) (*replicant.Replicant, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &replicant.PersistenceError{Op: "update", Err: fmt.Errorf("begin tx: %w", err)}
	}
	defer tx.Rollback() // No-op if committed

	// Step 1: read current state under the transaction.
	var (
		namespace, name string
		currentValue    string
		revision        uint64
	)
	err = tx.QueryRowContext(ctx, `
		SELECT namespace, name, value, revision FROM replicants WHERE id = ?
	`, id).Scan(&namespace, &name, &currentValue, &revision)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &replicant.NotFoundError{}
	}
	if err != nil {
		return nil, &replicant.PersistenceError{Op: "update", Err: fmt.Errorf("read current: %w", err)}
	}

	key := replicant.NewKey(namespace, name)
	now := s.now()

	// Step 2: append the prior state to history (CP-3 in the data model:
	// history records the state BEFORE the revision advanced).
	_, err = tx.ExecContext(ctx, `
		INSERT INTO history (replicant_id, value, revision, changed_by, changed_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		id,
		currentValue,
		revision,
		nullableString(actor),
		formatTime(now),
	)
	if err != nil {
		return nil, &replicant.PersistenceError{Key: key, Op: "update", Err: fmt.Errorf("append history: %w", err)}
	}

	// Step 3: write the new value with revision+1.
	_, err = tx.ExecContext(ctx, `
		UPDATE replicants SET value = ?, revision = revision + 1, updated_at = ?
		WHERE id = ?
	`,
		marshalValue(newValue),
		formatTime(now),
		id,
	)
	if err != nil {
		return nil, &replicant.PersistenceError{Key: key, Op: "update", Err: fmt.Errorf("write value: %w", err)}
	}

	if err := tx.Commit(); err != nil {
		return nil, &replicant.PersistenceError{Key: key, Op: "update", Err: fmt.Errorf("commit: %w", err)}
	}

	rec, err := s.FindByKey(ctx, namespace, name)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		// Deleted between commit and re-read; the update itself stood.
		return nil, &replicant.NotFoundError{Key: key}
	}
	return rec, nil
}

// Delete removes a replicant; the foreign key cascade removes its history.
// Deleting an unknown key returns a NotFoundError.
func (s *Store) Delete(ctx context.Context, namespace, name string) error {
	key := replicant.NewKey(namespace, name)

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM replicants WHERE namespace = ? AND name = ?
	`, key.Namespace, key.Name)
	if err != nil {
		return &replicant.PersistenceError{Key: key, Op: "delete", Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return &replicant.PersistenceError{Key: key, Op: "delete", Err: fmt.Errorf("rows affected: %w", err)}
	}
	if affected == 0 {
		return &replicant.NotFoundError{Key: key}
	}
	return nil
}

// PruneHistory deletes, for every replicant, all but the keepCount most
// recent history rows (retention by count, oldest-first). Returns the
// number of rows deleted.
func (s *Store) PruneHistory(ctx context.Context, keepCount int) (int64, error) {
	if keepCount < 0 {
		return 0, &replicant.PersistenceError{Op: "prune", Err: fmt.Errorf("keepCount must be >= 0, got %d", keepCount)}
	}

	// A row is pruned when keepCount or more newer rows exist for the
	// same replicant. History ids are monotonic per the AUTOINCREMENT
	// primary key, so "newer" is a plain id comparison.
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM history WHERE id IN (
			SELECT h.id FROM history h
			WHERE (
				SELECT COUNT(*) FROM history newer
				WHERE newer.replicant_id = h.replicant_id AND newer.id > h.id
			) >= ?
		)
	`, keepCount)
	if err != nil {
		return 0, &replicant.PersistenceError{Op: "prune", Err: err}
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, &replicant.PersistenceError{Op: "prune", Err: fmt.Errorf("rows affected: %w", err)}
	}
	return deleted, nil
}
