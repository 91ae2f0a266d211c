package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/replicant/internal/replicant"
)

// FindByKey returns the replicant for (namespace, name), or nil if no such
// replicant exists. The lookup key is NFC-normalized first, matching the
// normalization applied on write.
func (s *Store) FindByKey(ctx context.Context, namespace, name string) (*replicant.Replicant, error) {
	key := replicant.NewKey(namespace, name)

	row := s.db.QueryRowContext(ctx, `
		SELECT id, namespace, name, value, revision, schema, default_value, created_at, updated_at
		FROM replicants
		WHERE namespace = ? AND name = ?
	`, key.Namespace, key.Name)

	rec, err := scanReplicant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &replicant.PersistenceError{Key: key, Op: "load", Err: err}
	}
	return rec, nil
}

// ReadHistory returns all history entries for a key, oldest first. Walking
// the result in order replays the replicant's timeline: entry[i] holds the
// state that entry[i+1] replaced.
//
// Returns an empty slice (not nil) when the replicant exists but has no
// history, and a NotFoundError when it does not exist.
func (s *Store) ReadHistory(ctx context.Context, namespace, name string) ([]replicant.HistoryEntry, error) {
	key := replicant.NewKey(namespace, name)

	rec, err := s.FindByKey(ctx, namespace, name)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, &replicant.NotFoundError{Key: key}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, replicant_id, value, revision, changed_by, changed_at
		FROM history
		WHERE replicant_id = ?
		ORDER BY id ASC
	`, rec.ID)
	if err != nil {
		return nil, &replicant.PersistenceError{Key: key, Op: "load", Err: fmt.Errorf("query history: %w", err)}
	}
	defer rows.Close()

	entries := []replicant.HistoryEntry{}
	for rows.Next() {
		entry, err := scanHistoryEntry(rows)
		if err != nil {
			return nil, &replicant.PersistenceError{Key: key, Op: "load", Err: err}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, &replicant.PersistenceError{Key: key, Op: "load", Err: fmt.Errorf("iterate history: %w", err)}
	}

	return entries, nil
}

// ListNamespaces returns all namespaces with at least one replicant,
// ordered for deterministic output.
func (s *Store) ListNamespaces(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT namespace FROM replicants ORDER BY namespace ASC
	`)
	if err != nil {
		return nil, &replicant.PersistenceError{Op: "load", Err: fmt.Errorf("query namespaces: %w", err)}
	}
	defer rows.Close()

	return scanStrings(rows)
}

// ListNames returns all replicant names within a namespace, ordered for
// deterministic output.
func (s *Store) ListNames(ctx context.Context, namespace string) ([]string, error) {
	key := replicant.NewKey(namespace, "-")

	rows, err := s.db.QueryContext(ctx, `
		SELECT name FROM replicants WHERE namespace = ? ORDER BY name ASC
	`, key.Namespace)
	if err != nil {
		return nil, &replicant.PersistenceError{Op: "load", Err: fmt.Errorf("query names: %w", err)}
	}
	defer rows.Close()

	return scanStrings(rows)
}

// scanStrings drains a single-column string result set.
func scanStrings(rows *sql.Rows) ([]string, error) {
	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, &replicant.PersistenceError{Op: "load", Err: err}
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, &replicant.PersistenceError{Op: "load", Err: err}
	}
	return out, nil
}
