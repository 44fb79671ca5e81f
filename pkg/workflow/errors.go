package workflow

import (
	"errors"
	"fmt"

	"github.com/dukex/agendaflow/pkg/models"
	"github.com/dukex/agendaflow/pkg/persistence"
)

// Execution error taxonomy. Every error returned by the Executor wraps exactly one
// of these, except for infrastructure failures.
var (
	// ErrNotFound indicates the execution or workflow does not exist or belongs to another user.
	ErrNotFound = errors.New("not found")

	// ErrStateConflict indicates the requested action is not allowed from the current
	// status, or a concurrent writer changed the status first.
	ErrStateConflict = errors.New("state conflict")

	// ErrSynthesisFailure indicates no valid plan was produced.
	ErrSynthesisFailure = errors.New("synthesis failure")

	// ErrHardConstraintBlocked indicates approval was refused because hard rubrics failed.
	ErrHardConstraintBlocked = errors.New("hard constraint blocked")

	// ErrIterationLimitExceeded indicates the execution reached the iteration limit and was rejected.
	ErrIterationLimitExceeded = errors.New("iteration limit exceeded")

	// ErrInvalidRequest indicates the request itself is malformed.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrWorkflowMisconfigured indicates the stored workflow cannot produce a plan
	// context, such as a schedule with an unknown timezone.
	ErrWorkflowMisconfigured = errors.New("workflow misconfigured")
)

// ExecutionError carries the taxonomy sentinel in Err and the underlying failure in Cause.
type ExecutionError struct {
	Op          string
	ExecutionID string
	Err         error
	Message     string
	// Blocking lists the failed hard rubrics when Err is ErrHardConstraintBlocked.
	Blocking []models.RubricResult
	Cause    error
}

func (e *ExecutionError) Error() string {
	target := e.ExecutionID
	if target == "" {
		target = "-"
	}

	if e.Message != "" {
		return fmt.Sprintf("%s execution %s: %v: %s", e.Op, target, e.Err, e.Message)
	}

	return fmt.Sprintf("%s execution %s: %v", e.Op, target, e.Err)
}

func (e *ExecutionError) Unwrap() []error {
	errs := make([]error, 0, 2)

	if e.Err != nil {
		errs = append(errs, e.Err)
	}

	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}

	return errs
}

func newError(op, executionID string, kind error, message string) *ExecutionError {
	return &ExecutionError{Op: op, ExecutionID: executionID, Err: kind, Message: message}
}

// classify maps persistence failures into the taxonomy.
func classify(op, executionID string, err error) error {
	switch {
	case err == nil:
		return nil
	case persistence.IsExecutionNotFound(err), persistence.IsWorkflowNotFound(err):
		return &ExecutionError{Op: op, ExecutionID: executionID, Err: ErrNotFound, Cause: err}
	case persistence.IsStatusConflict(err):
		return &ExecutionError{
			Op:          op,
			ExecutionID: executionID,
			Err:         ErrStateConflict,
			Message:     "execution was modified concurrently",
			Cause:       err,
		}
	default:
		return fmt.Errorf("%s execution %s: %w", op, executionID, err)
	}
}

// IsNotFound checks if an error indicates a missing execution or workflow.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsStateConflict checks if an error indicates an illegal or lost transition.
func IsStateConflict(err error) bool {
	return errors.Is(err, ErrStateConflict)
}

// IsSynthesisFailure checks if an error indicates that no plan was produced.
func IsSynthesisFailure(err error) bool {
	return errors.Is(err, ErrSynthesisFailure)
}

// IsHardConstraintBlocked checks if an error indicates a refused approval.
func IsHardConstraintBlocked(err error) bool {
	return errors.Is(err, ErrHardConstraintBlocked)
}

// IsIterationLimitExceeded checks if an error indicates the iteration limit was reached.
func IsIterationLimitExceeded(err error) bool {
	return errors.Is(err, ErrIterationLimitExceeded)
}

// IsInvalidRequest checks if an error indicates a malformed request.
func IsInvalidRequest(err error) bool {
	return errors.Is(err, ErrInvalidRequest)
}

// IsWorkflowMisconfigured checks if an error indicates an unusable workflow definition.
func IsWorkflowMisconfigured(err error) bool {
	return errors.Is(err, ErrWorkflowMisconfigured)
}

// BlockingResults returns the failed hard rubrics carried by the error, if any.
func BlockingResults(err error) []models.RubricResult {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Blocking
	}

	return nil
}
