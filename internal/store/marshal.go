package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/replicant/internal/replicant"
)

// timeLayout is the stored timestamp format. RFC 3339 with nanoseconds
// keeps timestamps sortable as text and round-trippable without loss.
const timeLayout = time.RFC3339Nano

// formatTime renders a timestamp for storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime reads a stored timestamp.
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// marshalValue converts a canonical Value to TEXT for storage. Values are
// already canonical (CP-1), so this is a cast; a zero value stores as null
// JSON to keep the NOT NULL column satisfied.
func marshalValue(v replicant.Value) string {
	if v.IsZero() {
		return "null"
	}
	return string(v)
}

// marshalNullableValue converts an optional Value (e.g. schema) to a
// nullable TEXT column.
func marshalNullableValue(v replicant.Value) any {
	if v.IsZero() {
		return nil
	}
	return string(v)
}

// nullableString converts an optional string (e.g. actor) to a nullable
// TEXT column.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanReplicant reads one replicants row.
func scanReplicant(row rowScanner) (*replicant.Replicant, error) {
	var (
		rec          replicant.Replicant
		value        string
		schema       sql.NullString
		defaultValue sql.NullString
		createdAt    string
		updatedAt    string
	)

	err := row.Scan(&rec.ID, &rec.Namespace, &rec.Name, &value, &rec.Revision, &schema, &defaultValue, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	rec.Value = replicant.Value(value)
	if schema.Valid {
		rec.Schema = replicant.Value(schema.String)
	}
	if defaultValue.Valid {
		rec.DefaultValue = replicant.Value(defaultValue.String)
	}

	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	return &rec, nil
}

// scanHistoryEntry reads one history row.
func scanHistoryEntry(row rowScanner) (replicant.HistoryEntry, error) {
	var (
		entry     replicant.HistoryEntry
		value     string
		changedBy sql.NullString
		changedAt string
	)

	err := row.Scan(&entry.ID, &entry.ReplicantID, &value, &entry.Revision, &changedBy, &changedAt)
	if err != nil {
		return replicant.HistoryEntry{}, err
	}

	entry.Value = replicant.Value(value)
	if changedBy.Valid {
		entry.ChangedBy = changedBy.String
	}
	if entry.ChangedAt, err = parseTime(changedAt); err != nil {
		return replicant.HistoryEntry{}, err
	}

	return entry, nil
}
