package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by lookups that match no row for the owner.
var ErrNotFound = errors.New("record not found")

// Error is a local persistence failure. It is fatal to the operation that
// triggered it: there is no degraded path for a write that never reached disk.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage error: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsStorageError reports whether err came from the local store.
func IsStorageError(err error) bool {
	var se *Error
	return errors.As(err, &se)
}
