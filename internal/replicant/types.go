package replicant

import (
	"context"
	"time"
)

// Replicant is the authoritative record for one namespaced JSON value.
type Replicant struct {
	// ID is the storage row identifier (UUID). Empty for ephemeral
	// replicants, which never touch persistence.
	ID string `json:"id,omitempty"`

	// Namespace and Name form the unique key.
	Namespace string `json:"namespace"`
	Name      string `json:"name"`

	// Value is the current committed value.
	Value Value `json:"value"`

	// Revision identifies the committed state. Starts at 0 on creation and
	// advances by exactly 1 per committed write (CP-2).
	Revision uint64 `json:"revision"`

	// Schema is the optional JSON Schema document values are validated
	// against. A missing schema means every value validates.
	Schema Value `json:"schema,omitempty"`

	// DefaultValue is the value the replicant was created with.
	DefaultValue Value `json:"defaultValue,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Key returns the replicant's unique key.
func (r *Replicant) Key() Key {
	return NewKey(r.Namespace, r.Name)
}

// HistoryEntry is an immutable audit record of a replicant's state
// immediately before an update advanced its revision (CP-3). Walking
// entries in order replays the full timeline.
type HistoryEntry struct {
	ID          int64     `json:"id"`
	ReplicantID string    `json:"replicantId"`
	Value       Value     `json:"value"`
	Revision    uint64    `json:"revision"`
	ChangedBy   string    `json:"changedBy,omitempty"`
	ChangedAt   time.Time `json:"changedAt"`
}

// Persistence is the durable storage contract for persistent replicants.
// The engine owns all in-memory state; implementations own durability,
// history, and transactional atomicity of updates.
//
// Implementations must guarantee that Update is atomic: the history append
// and the value/revision write either both happen or neither does.
type Persistence interface {
	// Create inserts a new replicant at revision 0. schema may be zero.
	Create(ctx context.Context, namespace, name string, value, schema Value) (*Replicant, error)

	// Update atomically appends a history entry carrying the current
	// value and revision, then writes newValue with revision+1 and a
	// fresh UpdatedAt. actor is an opaque audit identity, may be empty.
	Update(ctx context.Context, id string, newValue Value, actor string) (*Replicant, error)

	// FindByKey returns the replicant for (namespace, name), or nil if
	// no such replicant exists.
	FindByKey(ctx context.Context, namespace, name string) (*Replicant, error)

	// Delete removes the replicant and cascades to all its history rows.
	// Deleting an unknown key returns a NotFoundError.
	Delete(ctx context.Context, namespace, name string) error

	// PruneHistory deletes, for every replicant, all but the keepCount
	// most recent history rows. Returns the number of rows deleted.
	PruneHistory(ctx context.Context, keepCount int) (int64, error)

	// ListNamespaces returns all namespaces with at least one replicant.
	ListNamespaces(ctx context.Context) ([]string, error)

	// ListNames returns all replicant names within a namespace.
	ListNames(ctx context.Context, namespace string) ([]string, error)
}
