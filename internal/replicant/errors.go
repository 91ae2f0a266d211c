package replicant

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode categorizes engine errors for wire transmission and logging.
type ErrorCode string

const (
	// ErrCodeSchemaValidation indicates a value was rejected by the
	// replicant's schema. No state changed.
	ErrCodeSchemaValidation ErrorCode = "SCHEMA_VALIDATION"

	// ErrCodeNotFound indicates a write or delete against an unknown
	// persistent key with no prior create.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodePersistence indicates a transactional commit failed. No
	// state changed, no broadcast was emitted.
	ErrCodePersistence ErrorCode = "PERSISTENCE"

	// ErrCodeTransport indicates a connection dropped mid-operation.
	// Writes already committed stand; only the dead subscription is
	// removed.
	ErrCodeTransport ErrorCode = "TRANSPORT"
)

// SchemaValidationError reports a value rejected by a replicant's schema.
// Violations lists every failing constraint, not just the first.
type SchemaValidationError struct {
	Key        Key
	Violations []SchemaViolation
}

// SchemaViolation describes a single failing constraint.
type SchemaViolation struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *SchemaValidationError) Error() string {
	if len(e.Violations) == 0 {
		return fmt.Sprintf("%s: value rejected by schema for %s", ErrCodeSchemaValidation, e.Key)
	}
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		if v.Path != "" {
			parts[i] = fmt.Sprintf("%s: %s", v.Path, v.Message)
		} else {
			parts[i] = v.Message
		}
	}
	return fmt.Sprintf("%s: value rejected by schema for %s: %s",
		ErrCodeSchemaValidation, e.Key, strings.Join(parts, "; "))
}

// NotFoundError reports an operation against an unknown persistent key.
type NotFoundError struct {
	Key Key
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: no replicant %s", ErrCodeNotFound, e.Key)
}

// PersistenceError reports a failed transactional commit. The wrapped
// error carries the storage-level cause.
type PersistenceError struct {
	Key Key
	Op  string // "create", "update", "delete", "prune", "load"
	Err error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	if e.Key == (Key{}) {
		return fmt.Sprintf("%s: %s: %v", ErrCodePersistence, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s %s: %v", ErrCodePersistence, e.Op, e.Key, e.Err)
}

// Unwrap exposes the storage-level cause for errors.Is/As.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// TransportError reports a dropped connection.
type TransportError struct {
	ConnID string
	Err    error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: connection %s: %v", ErrCodeTransport, e.ConnID, e.Err)
}

// Unwrap exposes the underlying transport cause.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsSchemaValidation reports whether err is a SchemaValidationError.
// Uses errors.As to handle wrapped errors.
func IsSchemaValidation(err error) bool {
	var ve *SchemaValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsPersistence reports whether err is a PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// CodeOf maps an error to its wire-level code. Unknown errors map to
// ErrCodePersistence, the conservative "commit did not happen" category.
func CodeOf(err error) ErrorCode {
	switch {
	case IsSchemaValidation(err):
		return ErrCodeSchemaValidation
	case IsNotFound(err):
		return ErrCodeNotFound
	default:
		var te *TransportError
		if errors.As(err, &te) {
			return ErrCodeTransport
		}
		return ErrCodePersistence
	}
}
