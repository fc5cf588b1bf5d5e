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

	// ValidationFailure: missing or too short required text, missing selection,
	// broken referential expectation.
	ErrValidation = errors.New("validation failure")

	// InvalidStateTransition: the action is not allowed from the current state.
	ErrStateTransition = errors.New("invalid state transition")

	// PermissionDenied: the actor lacks the role or is not the designated owner.
	ErrPermissionDenied = errors.New("permission denied")

	// ConsistencyViolation: an internal call whose preconditions do not hold.
	// Always a caller defect, never a user error.
	ErrConsistencyViolation = errors.New("consistency violation")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "project", "availability", "proposal"
	Op      string // Operation that failed, e.g., "Submit", "Approve"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message, shown to the user as is
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

// Denied builds a PermissionDenied error.
func Denied(domain, op, message string) *DomainError {
	return NewDomainError(domain, op, ErrPermissionDenied, message)
}

// Invalid builds a ValidationFailure error.
func Invalid(domain, op, message string) *DomainError {
	return NewDomainError(domain, op, ErrValidation, message)
}

// BadTransition builds an InvalidStateTransition error.
func BadTransition(domain, op, message string) *DomainError {
	return NewDomainError(domain, op, ErrStateTransition, message)
}

// Inconsistent builds a ConsistencyViolation error.
func Inconsistent(domain, op, message string) *DomainError {
	return NewDomainError(domain, op, ErrConsistencyViolation, message)
}

// NotFound builds a not-found error for the given entity.
func NotFound(domain, op, id string) *DomainError {
	return NewDomainError(domain, op, ErrNotFound, fmt.Sprintf("%s %q not found", domain, id))
}

// UserMessage extracts the human-readable message of a domain error.
// For any other error it returns fallback.
func UserMessage(err error, fallback string) string {
	var de *DomainError
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return fallback
}

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsInvalidState checks if the error is an invalid state transition.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrStateTransition)
}

// IsPermissionDenied checks if the error is an access-denied condition.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// IsConsistency checks if the error is a consistency violation.
func IsConsistency(err error) bool {
	return errors.Is(err, ErrConsistencyViolation)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConcurrentModification)
}

// IsFinal reports a domain error that another attempt cannot fix.
// Infrastructure errors without a domain kind are never final.
func IsFinal(err error) bool {
	var de *DomainError
	return errors.As(err, &de) && !IsRetryable(err)
}
