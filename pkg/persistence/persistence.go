// Package persistence provides the storage abstraction for workflows, rubrics and executions.
package persistence

import (
	"context"

	"github.com/dukex/agendaflow/pkg/models"
)

// Persistence bundles the repositories behind one backend.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	RubricRepository() RubricRepository
	ExecutionRepository() ExecutionRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores workflow definitions. Deleted workflows are soft-deleted
// and invisible to every read.
type WorkflowRepository interface {
	Save(ctx context.Context, workflow *models.Workflow) error
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	GetBySlug(ctx context.Context, userID, slug string) (*models.Workflow, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Workflow, error)
	// ListScheduled returns every workflow with an enabled schedule, for all users.
	ListScheduled(ctx context.Context) ([]*models.Workflow, error)
	Delete(ctx context.Context, id string) error
}

// RubricRepository stores rubrics. GetByWorkflow returns the non-deleted rubrics of a
// workflow, active or not, in creation order.
type RubricRepository interface {
	Save(ctx context.Context, rubric *models.WorkflowRubric) error
	GetByID(ctx context.Context, id string) (*models.WorkflowRubric, error)
	GetByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowRubric, error)
	Delete(ctx context.Context, id string) error
}

// ExecutionRepository stores workflow executions.
type ExecutionRepository interface {
	Create(ctx context.Context, execution *models.WorkflowExecution) error
	GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error)
	// Update writes the execution only if the stored status still equals expected and
	// the stored revision still equals execution.Revision, then bumps the revision.
	// Otherwise it returns ErrStatusConflict and leaves the stored record unchanged.
	Update(ctx context.Context, execution *models.WorkflowExecution, expected models.ExecutionStatus) error
	// ListByWorkflow returns the executions of a workflow, newest first.
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error)
}
