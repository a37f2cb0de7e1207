/*
errors.go - Centralized error types for the accounting engine

PURPOSE:

	All error types in one place for consistency and discoverability.
	Quota exhaustion and invariant conflicts are expected outcomes of normal
	operation, not failures: callers branch on them with errors.Is/As.

ERROR CATEGORIES:
 1. Not-found errors  - Referenced session/break missing or not the caller's
 2. Conflict errors   - Invariant violations (double-open, closing closed)
 3. Quota errors      - Break-type quota exhausted for the current window
 4. Validation errors - Malformed input
 5. Storage errors    - Collaborator failures, never retried by the engine

USAGE:

	if errors.Is(err, engine.ErrConflict) { ... }

	var qe *engine.QuotaExceededError
	if errors.As(err, &qe) { ... qe.BreakType ... }
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced session or break does not
	// exist or does not belong to the caller.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned on invariant violations: a second open session
	// for a user, a second open break on a session, closing an already-closed
	// entity, or editing a closed entity.
	ErrConflict = errors.New("conflict")

	// ErrQuotaExceeded is returned when a break type's quota is exhausted
	// for the current reset window.
	ErrQuotaExceeded = errors.New("break quota exceeded")

	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrStorage wraps storage-collaborator failures. The engine never
	// retries; retry policy belongs to the caller.
	ErrStorage = errors.New("storage failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError identifies which entity was missing.
type NotFoundError struct {
	Kind string // "session", "break", "profile"
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Kind, e.ID) }
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError describes which invariant would have been violated.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return "conflict: " + e.Reason }
func (e *ConflictError) Unwrap() error { return ErrConflict }

// QuotaExceededError reports the exhausted quota alongside the usage that
// exhausted it, so callers can display what remains.
type QuotaExceededError struct {
	BreakType string
	Usage     Usage
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for break type %q: %d/%d used, %d/%d minutes",
		e.BreakType, e.Usage.UsedCount, e.Usage.MaxCount, e.Usage.UsedMinutes, e.Usage.MaxMinutes)
}
func (e *QuotaExceededError) Unwrap() error { return ErrQuotaExceeded }

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string { return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason) }
func (e *ValidationError) Unwrap() error { return ErrValidation }

// StorageError wraps a failure from the storage collaborator.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage: %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return ErrStorage }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to the caller's input or
// an expected business-rule outcome rather than a system failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrQuotaExceeded) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict returns true for invariant-violation errors.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }
