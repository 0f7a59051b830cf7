package repository

import "errors"

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an atomic write observes that the
	// auction changed between the caller's read and the write. Callers
	// retry the whole operation.
	ErrConflict = errors.New("concurrent modification detected")

	// ErrDuplicate is returned on unique-constraint violations
	// (duplicate email, duplicate category name).
	ErrDuplicate = errors.New("duplicate entry")
)
