// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrFutureTimestamp = errors.New("timestamp is too far in the future")
	ErrInvalidFormat   = errors.New("invalid format")

	// State errors
	ErrInvalidState     = errors.New("invalid state")
	ErrStateTransition  = errors.New("invalid state transition")
	ErrAlreadyProcessed = errors.New("already processed")

	// Concurrency errors
	ErrConflict       = errors.New("write conflict")
	ErrOptimisticLock = errors.New("optimistic lock failure")

	// External / infrastructure errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "habit", "checkin", "achievement"
	Op      string // Operation that failed, e.g., "Submit", "Recompute"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Habit domain errors
var (
	ErrHabitNotFound      = NewDomainError("habit", "Find", ErrNotFound, "habit not found")
	ErrHabitAlreadyExists = NewDomainError("habit", "Create", ErrAlreadyExists, "habit already exists")
	ErrHabitNotActive     = NewDomainError("habit", "CheckStatus", ErrInvalidState, "habit is paused or archived")
	ErrInvalidFrequency   = NewDomainError("habit", "Validate", ErrInvalidInput, "invalid target frequency")
	ErrInvalidTimezone    = NewDomainError("habit", "Validate", ErrInvalidFormat, "invalid timezone name")
)

// Check-in domain errors
var (
	ErrLogNotFound          = NewDomainError("checkin", "Find", ErrNotFound, "habit log not found")
	ErrInvalidPercentage    = NewDomainError("checkin", "Validate", ErrValueOutOfRange, "completion percentage must be between 0 and 100")
	ErrCheckinInFuture      = NewDomainError("checkin", "Validate", ErrFutureTimestamp, "occurred_at exceeds clock-skew tolerance")
	ErrInvalidEvidence      = NewDomainError("checkin", "Validate", ErrInvalidInput, "invalid evidence payload")
	ErrCheckinConflict      = NewDomainError("checkin", "Submit", ErrConflict, "concurrent check-in for the same habit")
	ErrRecomputeInterrupted = NewDomainError("checkin", "Recompute", ErrTimeout, "streak recompute did not complete")
)

// Achievement domain errors
var (
	ErrAchievementNotFound = NewDomainError("achievement", "Find", ErrNotFound, "achievement not found")
	ErrAlreadyUnlocked     = NewDomainError("achievement", "Unlock", ErrAlreadyExists, "achievement already unlocked")
	ErrUnknownCriteria     = NewDomainError("achievement", "Evaluate", ErrInvalidInput, "unknown achievement criteria")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrFutureTimestamp) ||
		errors.Is(err, ErrInvalidFormat)
}

// IsState checks if the error is an invalid-state error.
func IsState(err error) bool {
	return errors.Is(err, ErrInvalidState) || errors.Is(err, ErrStateTransition)
}

// IsConflict checks if the error is a concurrency conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrOptimisticLock)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return IsConflict(err) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}
