// Package services provides workflow and rubric management on top of persistence.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/agendaflow/pkg/persistence"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest     = errors.New("invalid request")
	ErrInvalidSlug        = errors.New("invalid workflow slug")
	ErrInvalidIntegration = errors.New("unknown integration")
	ErrInvalidSchedule    = errors.New("invalid schedule")
	ErrInvalidRule        = errors.New("invalid rubric rule")
	ErrEmptyUserID        = errors.New("user ID cannot be empty")
	ErrWorkflowNil        = errors.New("workflow cannot be nil")

	// Business Logic Conflicts (409 Conflict).
	ErrSlugTaken = persistence.ErrSlugTaken

	// Missing resources (404 Not Found).
	ErrWorkflowNotFound = persistence.ErrWorkflowNotFound
	ErrRubricNotFound   = persistence.ErrRubricNotFound
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidSlug) ||
		errors.Is(err, ErrInvalidIntegration) ||
		errors.Is(err, ErrInvalidSchedule) ||
		errors.Is(err, ErrInvalidRule) ||
		errors.Is(err, ErrEmptyUserID) ||
		errors.Is(err, ErrWorkflowNil)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrSlugTaken)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound) || errors.Is(err, ErrRubricNotFound)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
