package types

import (
	"errors"
	"fmt"
)

// Error taxonomy. Callers discriminate with errors.As / errors.Is:
//   - TransientStorageError: store unreachable; retry with backoff, no state changed
//   - ValidationError: malformed update; rejected, case unchanged
//   - CollaboratorTimeout: generation/search exceeded its bound; turn aborted,
//     nothing persisted, retryable
// A stall is deliberately NOT an error; see StallState.

// ErrVersionConflict is returned by the store when a compare-and-swap save
// observes a version other than the expected one.
var ErrVersionConflict = errors.New("case version conflict")

// ErrCaseNotFound is returned when a case id resolves to nothing.
var ErrCaseNotFound = errors.New("case not found")

// ErrSessionNotFound is returned when a session id resolves to nothing.
var ErrSessionNotFound = errors.New("session not found")

// TransientStorageError wraps a store failure that left no partial state
// behind. Safe to retry with backoff.
type TransientStorageError struct {
	Op  string
	Err error
}

func (e *TransientStorageError) Error() string {
	return fmt.Sprintf("transient storage error during %s: %v", e.Op, e.Err)
}

func (e *TransientStorageError) Unwrap() error { return e.Err }

// NewTransient wraps err as a TransientStorageError for the given operation.
func NewTransient(op string, err error) error {
	return &TransientStorageError{Op: op, Err: err}
}

// ValidationError rejects a malformed update. The case is unchanged.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Reason)
}

// NewValidation builds a ValidationError.
func NewValidation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// CollaboratorTimeout marks an external generation/search call that exceeded
// its bound. The turn is aborted with no evidence persisted; retryable.
type CollaboratorTimeout struct {
	Collaborator string
	Err          error
}

func (e *CollaboratorTimeout) Error() string {
	return fmt.Sprintf("collaborator %s timed out: %v", e.Collaborator, e.Err)
}

func (e *CollaboratorTimeout) Unwrap() error { return e.Err }

// IsRetryable reports whether the error is transient: storage failure,
// collaborator timeout, or a version conflict (the caller reloads and
// retries).
func IsRetryable(err error) bool {
	var ts *TransientStorageError
	if errors.As(err, &ts) {
		return true
	}
	var ct *CollaboratorTimeout
	if errors.As(err, &ct) {
		return true
	}
	return errors.Is(err, ErrVersionConflict)
}

// IsValidation reports whether the error is a rejected update.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
