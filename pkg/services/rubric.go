package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/agendaflow/pkg/models"
	"github.com/dukex/agendaflow/pkg/persistence"
	"github.com/dukex/agendaflow/pkg/rubric"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Rubric manages the rubrics of a user's workflows.
type Rubric struct {
	workflows *Workflow
	rubrics   persistence.RubricRepository
	validate  *validator.Validate
	logger    *slog.Logger
}

func NewRubric(workflows *Workflow, logger *slog.Logger) *Rubric {
	return &Rubric{
		workflows: workflows,
		rubrics:   workflows.persistence.RubricRepository(),
		validate:  workflows.validate,
		logger:    logger.With("module", "rubric_service"),
	}
}

// List returns the workflow's rubrics in creation order.
func (r *Rubric) List(ctx context.Context, userID, workflowID string) ([]*models.WorkflowRubric, error) {
	if _, err := r.workflows.FetchByID(ctx, userID, workflowID); err != nil {
		return nil, err
	}

	rubrics, err := r.rubrics.GetByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rubrics: %w", err)
	}

	return rubrics, nil
}

// Create adds a rubric after checking that its rule can be evaluated.
func (r *Rubric) Create(ctx context.Context, userID, workflowID string, wr *models.WorkflowRubric) (*models.WorkflowRubric, error) {
	if wr == nil {
		return nil, NewValidationError("CreateRubric", "VALIDATION_FAILED", "rubric is required", ErrInvalidRequest)
	}

	workflow, err := r.workflows.FetchByID(ctx, userID, workflowID)
	if err != nil {
		return nil, err
	}

	if err := r.validate.Struct(wr); err != nil {
		return nil, NewValidationError("CreateRubric", "VALIDATION_FAILED", err.Error(), ErrInvalidRequest)
	}

	if err := rubric.ValidateRule(wr.Rule); err != nil {
		return nil, NewValidationError("CreateRubric", "INVALID_RULE", err.Error(), ErrInvalidRule)
	}

	now := time.Now().UTC()
	wr.ID = uuid.New().String()
	wr.WorkflowID = workflow.ID
	wr.UserID = workflow.UserID
	wr.CreatedAt = now
	wr.UpdatedAt = now
	wr.DeletedAt = nil

	if err := r.rubrics.Save(ctx, wr); err != nil {
		return nil, fmt.Errorf("failed to save rubric: %w", err)
	}

	r.logger.InfoContext(ctx, "Rubric created", "rubric_id", wr.ID, "workflow_id", workflow.ID, "kind", wr.Rule.Kind)

	return wr, nil
}

// Delete soft-deletes a rubric of the workflow.
func (r *Rubric) Delete(ctx context.Context, userID, workflowID, rubricID string) error {
	if _, err := r.workflows.FetchByID(ctx, userID, workflowID); err != nil {
		return err
	}

	existing, err := r.rubrics.GetByID(ctx, rubricID)
	if err != nil {
		return err
	}

	if existing.WorkflowID != workflowID {
		return fmt.Errorf("rubric %s: %w", rubricID, ErrRubricNotFound)
	}

	if err := r.rubrics.Delete(ctx, rubricID); err != nil {
		return fmt.Errorf("failed to delete rubric: %w", err)
	}

	return nil
}

// SeedDefaults adds the default rubrics of the workflow type again, next to any existing ones.
func (r *Rubric) SeedDefaults(ctx context.Context, userID, workflowID string) ([]*models.WorkflowRubric, error) {
	workflow, err := r.workflows.FetchByID(ctx, userID, workflowID)
	if err != nil {
		return nil, err
	}

	return seedDefaults(ctx, r.rubrics, workflow)
}
