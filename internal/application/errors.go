package application

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when the acting principal lacks permission for an operation.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

// ConflictError reports that the requested slot overlaps a confirmed meeting.
// Callers should regenerate the slot list.
type ConflictError struct {
	RequestID string
	Conflicts []string
}

func (e *ConflictError) Error() string {
	if e == nil {
		return ""
	}
	if len(e.Conflicts) == 0 {
		return "slot already booked"
	}
	return fmt.Sprintf("slot already booked by meeting %s", e.Conflicts[0])
}

// InvalidStateError reports a transition the request's current status does not allow.
type InvalidStateError struct {
	RequestID string
	Status    RequestStatus
	Operation string
}

func (e *InvalidStateError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("cannot %s request %s in status %s", e.Operation, e.RequestID, e.Status)
}

// PersistenceError wraps a failure of an external store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
