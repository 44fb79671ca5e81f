package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/dukex/agendaflow/pkg/models"
	"github.com/dukex/agendaflow/pkg/persistence"
	"github.com/dukex/agendaflow/pkg/rubric"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

type Workflow struct {
	persistence persistence.Persistence
	validate    *validator.Validate
	logger      *slog.Logger
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(persistence persistence.Persistence, validate *validator.Validate, logger *slog.Logger) *Workflow {
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}

	return &Workflow{
		persistence: persistence,
		validate:    validate,
		logger:      logger.With("module", "workflow_service"),
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// List returns the user's live workflows.
func (w *Workflow) List(ctx context.Context, userID string) ([]*models.Workflow, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrEmptyUserID
	}

	workflows, err := w.persistence.WorkflowRepository().ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return workflows, nil
}

// FetchByID retrieves a workflow owned by the user. Workflows of other users are
// reported as not found.
func (w *Workflow) FetchByID(ctx context.Context, userID, id string) (*models.Workflow, error) {
	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if workflow.UserID != userID {
		return nil, persistence.NewWorkflowError("FetchByID", id, ErrWorkflowNotFound)
	}

	return workflow, nil
}

// Create stores a new workflow for the user and seeds the default rubrics of its type.
func (w *Workflow) Create(ctx context.Context, userID string, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	workflow.ID = uuid.New().String()
	workflow.UserID = userID
	workflow.CreatedAt = w.now()
	workflow.UpdatedAt = workflow.CreatedAt
	workflow.DeletedAt = nil

	if err := w.check("Create", workflow); err != nil {
		return nil, err
	}

	if err := w.save(ctx, "Create", workflow); err != nil {
		return nil, err
	}

	seeded, err := seedDefaults(ctx, w.persistence.RubricRepository(), workflow)
	if err != nil {
		return nil, err
	}

	w.logger.InfoContext(ctx, "Workflow created",
		"workflow_id", workflow.ID,
		"user_id", userID,
		"type", workflow.Type,
		"rubrics", len(seeded),
	)

	return workflow, nil
}

// Update replaces an existing workflow of the user, keeping identity and creation time.
func (w *Workflow) Update(ctx context.Context, userID, workflowID string, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	existing, err := w.FetchByID(ctx, userID, workflowID)
	if err != nil {
		return nil, err
	}

	workflow.ID = existing.ID
	workflow.UserID = existing.UserID
	workflow.CreatedAt = existing.CreatedAt
	workflow.DeletedAt = nil

	if err := w.check("Update", workflow); err != nil {
		return nil, err
	}

	if err := w.save(ctx, "Update", workflow); err != nil {
		return nil, err
	}

	return workflow, nil
}

// Delete soft-deletes a workflow of the user.
func (w *Workflow) Delete(ctx context.Context, userID, workflowID string) error {
	if _, err := w.FetchByID(ctx, userID, workflowID); err != nil {
		return err
	}

	err := w.persistence.WorkflowRepository().Delete(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	return nil
}

func (w *Workflow) save(ctx context.Context, op string, workflow *models.Workflow) error {
	err := w.persistence.WorkflowRepository().Save(ctx, workflow)
	if err == nil {
		return nil
	}

	if persistence.IsSlugTaken(err) {
		return &ServiceError{
			Op:      op,
			Code:    "SLUG_TAKEN",
			Message: fmt.Sprintf("slug %q is already used by another workflow", workflow.Slug),
			Err:     ErrSlugTaken,
		}
	}

	return fmt.Errorf("failed to save workflow: %w", err)
}

// check validates the workflow fields that the struct tags cannot express.
func (w *Workflow) check(op string, workflow *models.Workflow) error {
	workflow.Slug = strings.TrimSpace(workflow.Slug)

	if workflow.UserID == "" {
		return ErrEmptyUserID
	}

	if err := w.validate.Struct(workflow); err != nil {
		return NewValidationError(op, "VALIDATION_FAILED", err.Error(), ErrInvalidRequest)
	}

	if !slugPattern.MatchString(workflow.Slug) {
		return NewValidationError(op, "INVALID_SLUG",
			fmt.Sprintf("slug %q must match %s", workflow.Slug, slugPattern), ErrInvalidSlug)
	}

	for _, integration := range workflow.Integrations {
		if !integration.IsValid() {
			return NewValidationError(op, "INVALID_INTEGRATION",
				fmt.Sprintf("unknown integration %q", integration), ErrInvalidIntegration)
		}
	}

	if workflow.Schedule != nil {
		if err := workflow.Schedule.Validate(); err != nil {
			return NewValidationError(op, "INVALID_SCHEDULE", err.Error(), errors.Join(ErrInvalidSchedule, err))
		}
	}

	return nil
}

func (w *Workflow) now() time.Time {
	return time.Now().UTC()
}

// seedDefaults stores fresh copies of the default rubrics for the workflow type.
func seedDefaults(ctx context.Context, repo persistence.RubricRepository, workflow *models.Workflow) ([]*models.WorkflowRubric, error) {
	defaults, err := rubric.DefaultRubrics(workflow.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to load default rubrics: %w", err)
	}

	for _, r := range defaults {
		r.ID = uuid.New().String()
		r.WorkflowID = workflow.ID
		r.UserID = workflow.UserID

		if err := repo.Save(ctx, r); err != nil {
			return nil, fmt.Errorf("failed to seed rubric %q: %w", r.Name, err)
		}
	}

	return defaults, nil
}
