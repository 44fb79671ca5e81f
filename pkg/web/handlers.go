package web

import (
	"net/http"
	"time"

	"github.com/dukex/agendaflow/pkg/models"
	"github.com/dukex/agendaflow/pkg/services"
	"github.com/dukex/agendaflow/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// UserIDHeader carries the identity of the caller. Authentication happens upstream.
const UserIDHeader = "X-User-ID"

const userIDLocal = "user_id"

type APIHandlers struct {
	workflowService *services.Workflow
	rubricService   *services.Rubric
	executor        *workflow.Executor
	validator       *validator.Validate
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	rubricService *services.Rubric,
	executor *workflow.Executor,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		workflowService: workflowService,
		rubricService:   rubricService,
		executor:        executor,
		validator:       validator,
	}
}

// RequireUser rejects requests without the identity header.
func (h *APIHandlers) RequireUser(c fiber.Ctx) error {
	userID := c.Get(UserIDHeader)
	if userID == "" {
		return unauthorized(c)
	}

	c.Locals(userIDLocal, userID)

	return c.Next()
}

func userID(c fiber.Ctx) string {
	id, _ := c.Locals(userIDLocal).(string)

	return id
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Agendaflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Agendaflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.workflowService.List(c.Context(), userID(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflows)
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflow, err := h.workflowService.FetchByID(c.Context(), userID(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow := &models.Workflow{
		Slug:         req.Slug,
		Name:         req.Name,
		Description:  req.Description,
		Type:         req.Type,
		Steps:        req.Steps,
		Integrations: req.Integrations,
		Schedule:     req.Schedule,
	}

	created, err := h.workflowService.Create(c.Context(), userID(c), workflow)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")

	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.workflowService.FetchByID(c.Context(), userID(c), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	req.Apply(existing)

	updated, err := h.workflowService.Update(c.Context(), userID(c), id, existing)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	if err := h.workflowService.Delete(c.Context(), userID(c), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetRubrics(c fiber.Ctx) error {
	rubrics, err := h.rubricService.List(c.Context(), userID(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(rubrics)
}

func (h *APIHandlers) CreateRubric(c fiber.Ctx) error {
	var req CreateRubricRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.rubricService.Create(c.Context(), userID(c), c.Params("id"), req.Rubric())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) DeleteRubric(c fiber.Ctx) error {
	err := h.rubricService.Delete(c.Context(), userID(c), c.Params("id"), c.Params("rubricId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) SeedDefaultRubrics(c fiber.Ctx) error {
	seeded, err := h.rubricService.SeedDefaults(c.Context(), userID(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(seeded)
}

func (h *APIHandlers) GetWorkflowExecutions(c fiber.Ctx) error {
	executions, err := h.executor.ListByWorkflow(c.Context(), c.Params("id"), userID(c))
	if err != nil {
		return handleExecutionError(c, nil, err)
	}

	return c.JSON(executions)
}

func (h *APIHandlers) CreateExecution(c fiber.Ctx) error {
	var req ExecuteRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	outcome, err := h.executor.Execute(c.Context(), workflow.ExecuteRequest{
		UserID:       userID(c),
		WorkflowID:   req.WorkflowID,
		WorkflowSlug: req.WorkflowSlug,
		TargetDate:   req.TargetDate,
		InputData:    req.InputData,
	})
	if err != nil {
		return handleExecutionError(c, outcome, err)
	}

	return c.Status(fiber.StatusCreated).JSON(newExecutionResponse(outcome))
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	outcome, err := h.executor.Get(c.Context(), c.Params("id"), userID(c))
	if err != nil {
		return handleExecutionError(c, nil, err)
	}

	return c.JSON(newExecutionResponse(outcome))
}

func (h *APIHandlers) ResumeExecution(c fiber.Ctx) error {
	var req ResumeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	outcome, err := h.executor.Resume(c.Context(), workflow.ResumeRequest{
		ExecutionID: c.Params("id"),
		UserID:      userID(c),
		Action:      req.Action,
		Feedback:    req.Feedback,
	})
	if err != nil {
		return handleExecutionError(c, outcome, err)
	}

	return c.JSON(newExecutionResponse(outcome))
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	outcome, err := h.executor.Cancel(c.Context(), c.Params("id"), userID(c))
	if err != nil {
		return handleExecutionError(c, outcome, err)
	}

	return c.JSON(newExecutionResponse(outcome))
}

// Register mounts every route on the app. Health endpoints stay outside the
// identity check.
func (h *APIHandlers) Register(app *fiber.App) {
	app.Get("/health", h.HealthCheck)

	w := app.Group("/workflows", h.RequireUser)
	w.Get("/", h.GetWorkflows)
	w.Post("/", h.CreateWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Patch("/:id", h.UpdateWorkflow)
	w.Delete("/:id", h.DeleteWorkflow)

	w.Get("/:id/rubrics", h.GetRubrics)
	w.Post("/:id/rubrics", h.CreateRubric)
	w.Post("/:id/rubrics/defaults", h.SeedDefaultRubrics)
	w.Delete("/:id/rubrics/:rubricId", h.DeleteRubric)

	w.Get("/:id/executions", h.GetWorkflowExecutions)

	e := app.Group("/executions", h.RequireUser)
	e.Post("/", h.CreateExecution)
	e.Get("/:id", h.GetExecution)
	e.Post("/:id/resume", h.ResumeExecution)
	e.Post("/:id/cancel", h.CancelExecution)
}
