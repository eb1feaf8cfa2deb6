package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a record with the same identifier already exists.
	ErrDuplicate = errors.New("persistence: duplicate record")
	// ErrOverlap is returned when a confirmed meeting would overlap an existing one on the same date.
	ErrOverlap = errors.New("persistence: overlapping confirmed meeting")
	// ErrStateConflict is returned when a request is no longer in the state a transition expects.
	ErrStateConflict = errors.New("persistence: request state changed")
	// ErrConstraintViolation is returned when a record violates a storage constraint.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
)
