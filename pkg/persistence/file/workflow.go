package file

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/dukex/agendaflow/pkg/models"
	"github.com/dukex/agendaflow/pkg/persistence"
)

// WorkflowRepository handles workflow-related file operations.
type WorkflowRepository struct {
	store *store
}

// Save creates or replaces a workflow. The slug must be unique among the owner's
// live workflows.
func (wr *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	wr.store.mu.Lock()
	defer wr.store.mu.Unlock()

	existing, err := wr.all()
	if err != nil {
		return err
	}

	for _, other := range existing {
		if other.ID != workflow.ID && other.UserID == workflow.UserID && other.Slug == workflow.Slug {
			return persistence.NewWorkflowError("Save", workflow.ID, persistence.ErrSlugTaken)
		}
	}

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	return wr.store.write(workflowsDir, workflow.ID, workflow)
}

// GetByID retrieves a live workflow by its ID.
func (wr *WorkflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	var workflow models.Workflow

	found, err := wr.store.read(workflowsDir, id, &workflow)
	if err != nil {
		return nil, err
	}

	if !found || workflow.DeletedAt != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	return &workflow, nil
}

func (wr *WorkflowRepository) GetBySlug(_ context.Context, userID, slug string) (*models.Workflow, error) {
	workflows, err := wr.all()
	if err != nil {
		return nil, err
	}

	for _, workflow := range workflows {
		if workflow.UserID == userID && workflow.Slug == slug {
			return workflow, nil
		}
	}

	return nil, persistence.NewWorkflowError("GetBySlug", slug, persistence.ErrWorkflowNotFound)
}

func (wr *WorkflowRepository) ListByUser(_ context.Context, userID string) ([]*models.Workflow, error) {
	workflows, err := wr.all()
	if err != nil {
		return nil, err
	}

	owned := make([]*models.Workflow, 0, len(workflows))

	for _, workflow := range workflows {
		if workflow.UserID == userID {
			owned = append(owned, workflow)
		}
	}

	return owned, nil
}

func (wr *WorkflowRepository) ListScheduled(_ context.Context) ([]*models.Workflow, error) {
	workflows, err := wr.all()
	if err != nil {
		return nil, err
	}

	scheduled := make([]*models.Workflow, 0)

	for _, workflow := range workflows {
		if workflow.Schedule != nil && workflow.Schedule.Enabled {
			scheduled = append(scheduled, workflow)
		}
	}

	return scheduled, nil
}

// Delete soft-deletes a workflow.
func (wr *WorkflowRepository) Delete(ctx context.Context, id string) error {
	wr.store.mu.Lock()
	defer wr.store.mu.Unlock()

	workflow, err := wr.GetByID(ctx, id)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	workflow.DeletedAt = &now
	workflow.UpdatedAt = now

	return wr.store.write(workflowsDir, id, workflow)
}

// all returns every live workflow sorted by creation time.
func (wr *WorkflowRepository) all() ([]*models.Workflow, error) {
	workflows := make([]*models.Workflow, 0)

	err := wr.store.list(workflowsDir, func(data []byte) error {
		var workflow models.Workflow
		if err := json.Unmarshal(data, &workflow); err != nil {
			return err
		}

		if workflow.DeletedAt == nil {
			workflows = append(workflows, &workflow)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.Before(workflows[j].CreatedAt)
	})

	return workflows, nil
}
