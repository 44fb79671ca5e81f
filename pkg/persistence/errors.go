package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrRubricNotFound indicates a rubric was not found by the given identifier.
	ErrRubricNotFound = errors.New("rubric not found")

	// ErrExecutionNotFound indicates an execution was not found by the given identifier.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrExecutionAlreadyExists indicates an execution with the same identifier already exists.
	ErrExecutionAlreadyExists = errors.New("execution already exists")

	// ErrStatusConflict indicates a compare-and-swap update lost against a concurrent writer.
	ErrStatusConflict = errors.New("execution status changed concurrently")

	// ErrSlugTaken indicates the user already owns a workflow with the same slug.
	ErrSlugTaken = errors.New("workflow slug already taken")
)

// WorkflowError wraps workflow-related errors with additional context.
type WorkflowError struct {
	Op         string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	WorkflowID string
	Err        error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s operation failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

func (e *WorkflowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewWorkflowError creates a new workflow error with context.
func NewWorkflowError(op, workflowID string, err error) *WorkflowError {
	return &WorkflowError{Op: op, WorkflowID: workflowID, Err: err}
}

// ExecutionError wraps execution-related errors with the status the writer expected.
type ExecutionError struct {
	Op          string
	ExecutionID string
	Expected    string
	Err         error
}

func (e *ExecutionError) Error() string {
	if e.Expected != "" {
		return fmt.Sprintf("%s operation failed for execution %s (expected status %s): %v", e.Op, e.ExecutionID, e.Expected, e.Err)
	}

	return fmt.Sprintf("%s operation failed for execution %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsRubricNotFound checks if an error indicates a rubric was not found.
func IsRubricNotFound(err error) bool {
	return errors.Is(err, ErrRubricNotFound)
}

// IsExecutionNotFound checks if an error indicates an execution was not found.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsStatusConflict checks if an error indicates a lost compare-and-swap.
func IsStatusConflict(err error) bool {
	return errors.Is(err, ErrStatusConflict)
}

// IsSlugTaken checks if an error indicates a duplicated workflow slug.
func IsSlugTaken(err error) bool {
	return errors.Is(err, ErrSlugTaken)
}
