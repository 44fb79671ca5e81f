package web

import (
	"errors"

	"github.com/dukex/agendaflow/pkg/services"
	"github.com/dukex/agendaflow/pkg/workflow"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func unauthorized(c fiber.Ctx) error {
	problem := problems.NewStatusProblem(401).
		WithInstance(c.Path()).
		WithType("unauthorized").
		WithDetail("the " + UserIDHeader + " header is required")

	return c.Status(fiber.StatusUnauthorized).JSON(problem)
}

// handleServiceError provides typed error handling for service layer errors.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsValidationError(err):
		problem := problems.NewStatusProblem(400).
			WithInstance(c.Path()).
			WithType("validation_error").
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadRequest).JSON(problem)

	case services.IsConflictError(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("conflict").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case errors.Is(err, services.ErrWorkflowNotFound):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("workflow_not_found").
			WithDetail("workflow not found")

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case errors.Is(err, services.ErrRubricNotFound):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("rubric_not_found").
			WithDetail("rubric not found")

		return c.Status(fiber.StatusNotFound).JSON(problem)

	default:
		problem := problems.NewStatusProblem(500).
			WithInstance(c.Path()).
			WithType("internal_error").
			WithError(err)

		return c.Status(fiber.StatusInternalServerError).JSON(problem)
	}
}

// executionProblem maps the execution error taxonomy to a problem and its status.
func executionProblem(c fiber.Ctx, err error) (any, int) {
	var (
		status    int
		errorType string
	)

	switch {
	case workflow.IsInvalidRequest(err):
		status, errorType = fiber.StatusBadRequest, "validation_error"
	case workflow.IsNotFound(err):
		status, errorType = fiber.StatusNotFound, "not_found"
	case workflow.IsStateConflict(err):
		status, errorType = fiber.StatusConflict, "state_conflict"
	case workflow.IsHardConstraintBlocked(err):
		status, errorType = fiber.StatusUnprocessableEntity, "hard_constraint_blocked"
	case workflow.IsIterationLimitExceeded(err):
		status, errorType = fiber.StatusUnprocessableEntity, "iteration_limit_exceeded"
	case workflow.IsWorkflowMisconfigured(err):
		status, errorType = fiber.StatusUnprocessableEntity, "workflow_misconfigured"
	case workflow.IsSynthesisFailure(err):
		status, errorType = fiber.StatusBadGateway, "synthesis_failure"
	default:
		problem := problems.NewStatusProblem(500).
			WithInstance(c.Path()).
			WithType("internal_error").
			WithError(err)

		return problem, fiber.StatusInternalServerError
	}

	problem := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(errorType).
		WithDetail(err.Error())

	return problem, status
}

// handleExecutionError answers with the problem alone, or with the execution and the
// problem when the failure left a persisted execution behind.
func handleExecutionError(c fiber.Ctx, outcome *workflow.Outcome, err error) error {
	problem, status := executionProblem(c, err)

	if outcome == nil || outcome.Execution == nil {
		return c.Status(status).JSON(problem)
	}

	return c.Status(status).JSON(ExecutionErrorResponse{
		ExecutionResponse: newExecutionResponse(outcome),
		Error:             problem,
		Blocking:          workflow.BlockingResults(err),
	})
}
