package domain

import (
	"errors"
	"fmt"
)

// Common domain errors. Not-found and unsupported-type conditions are
// the only error classes that cross the engine boundary; no-data and
// malformed-input conditions degrade to neutral values locally.
var (
	// ErrTaskNotFound indicates the referenced task does not exist.
	ErrTaskNotFound = errors.New("task not found")

	// ErrUserNotFound indicates the referenced user does not exist.
	// Authority scoring treats this as a neutral no-op, not a panic.
	ErrUserNotFound = errors.New("user not found")

	// ErrFeedbackNotFound indicates the referenced feedback does not exist.
	ErrFeedbackNotFound = errors.New("feedback not found")

	// ErrUnsupportedTaskType indicates no handler is registered for a
	// task type. Fatal for the triggering call.
	ErrUnsupportedTaskType = errors.New("unsupported task type")

	// ErrInvalidConfiguration indicates a scoring or task-schema
	// configuration document failed validation.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// ValidationError collects field-level failures from feedback payload
// validation against a task type's schema.
type ValidationError struct {
	// Entity names what failed validation, e.g. "feedback_data[QA]".
	Entity string

	// Errors lists the individual field failures.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// AddError appends a field failure message.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors reports whether any failures were recorded.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates an empty ValidationError for the entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{Entity: entity, Errors: make([]string, 0)}
}
