package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrInvalidRevision indicates a negative or malformed revision indicator.
	ErrInvalidRevision = errors.New("revision: invalid revision")
	// ErrEntityNotFound indicates the row targeted by an update or delete no longer exists.
	ErrEntityNotFound = errors.New("revision: entity not found")
	// ErrRevisionConflict indicates the stored markers changed since the caller read them.
	ErrRevisionConflict = errors.New("revision: concurrent revision change")
)

// InvalidRevisionError carries the rejected indicator value.
type InvalidRevisionError struct {
	Value  string
	Reason string
}

func (e *InvalidRevisionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid revision %q: %s", e.Value, e.Reason)
	}
	return fmt.Sprintf("invalid revision %q", e.Value)
}

func (e *InvalidRevisionError) Is(target error) bool {
	return target == ErrInvalidRevision
}

// EntityNotFoundError identifies the vanished row.
type EntityNotFoundError struct {
	Table string
	ID    uuid.UUID
}

func (e *EntityNotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Table, e.ID)
}

func (e *EntityNotFoundError) Is(target error) bool {
	return target == ErrEntityNotFound
}

// PersistenceError wraps a store failure without translating it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsPersistence reports whether err originated in the underlying store.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
