// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrRuleNotFound indicates a rule was not found by the given identifier.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrStatusNotFound indicates a status could not be resolved.
	ErrStatusNotFound = errors.New("status not found")

	// ErrSubjectNotFound indicates a subject was not found by the given identifier.
	ErrSubjectNotFound = errors.New("subject not found")

	// ErrAlreadyRecorded indicates the ledger key is recorded or reserved.
	ErrAlreadyRecorded = errors.New("occurrence already recorded")

	// ErrReservationClosed indicates Commit or Release was called twice.
	ErrReservationClosed = errors.New("reservation already closed")
)

// RecordError wraps store errors with the operation and record they concern.
type RecordError struct {
	Op       string // Operation being performed (e.g., "SubjectByID", "Reserve")
	Resource string // Resource kind (e.g., "subject", "ledger")
	ID       string // Record identifier if applicable
	Err      error  // Underlying error
}

func (e *RecordError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s operation failed for %s: %v", e.Op, e.Resource, e.Err)
	}

	return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Resource, e.ID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for record errors.
func (e *RecordError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRecordError creates a new record error with context.
func NewRecordError(op, resource, id string, err error) *RecordError {
	return &RecordError{
		Op:       op,
		Resource: resource,
		ID:       id,
		Err:      err,
	}
}

// IsSubjectNotFound checks if an error indicates a subject was not found.
func IsSubjectNotFound(err error) bool {
	return errors.Is(err, ErrSubjectNotFound)
}

// IsStatusNotFound checks if an error indicates a status was not found.
func IsStatusNotFound(err error) bool {
	return errors.Is(err, ErrStatusNotFound)
}

// IsAlreadyRecorded checks if an error indicates the ledger key is taken.
func IsAlreadyRecorded(err error) bool {
	return errors.Is(err, ErrAlreadyRecorded)
}
