package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a row does not exist
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicateFingerprint is returned when a scenario fingerprint
	// collides inside the non-repetition window
	ErrDuplicateFingerprint = errors.New("duplicate scenario fingerprint")

	// ErrInvalidTransition is returned when a guarded state transition finds
	// the row no longer in the expected from-state
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrUnavailable is returned when the backend cannot be reached after
	// the retry budget is spent
	ErrUnavailable = errors.New("store unavailable")
)

// NotFoundError carries the aggregate and ID that missed.
type NotFoundError struct {
	Aggregate string
	ID        string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found", e.Aggregate, e.ID)
}

// Unwrap ties NotFoundError to ErrNotFound for errors.Is checks.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewNotFoundError creates a NotFoundError for the given aggregate and ID.
func NewNotFoundError(aggregate, id string) error {
	return &NotFoundError{Aggregate: aggregate, ID: id}
}
