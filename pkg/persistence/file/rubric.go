package file

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/dukex/agendaflow/pkg/models"
	"github.com/dukex/agendaflow/pkg/persistence"
)

// RubricRepository handles rubric-related file operations.
type RubricRepository struct {
	store *store
}

func (rr *RubricRepository) Save(_ context.Context, rubric *models.WorkflowRubric) error {
	rr.store.mu.Lock()
	defer rr.store.mu.Unlock()

	now := time.Now().UTC()
	if rubric.CreatedAt.IsZero() {
		rubric.CreatedAt = now
	}

	rubric.UpdatedAt = now

	return rr.store.write(rubricsDir, rubric.ID, rubric)
}

func (rr *RubricRepository) GetByID(_ context.Context, id string) (*models.WorkflowRubric, error) {
	var rubric models.WorkflowRubric

	found, err := rr.store.read(rubricsDir, id, &rubric)
	if err != nil {
		return nil, err
	}

	if !found || rubric.DeletedAt != nil {
		return nil, fmt.Errorf("rubric %s: %w", id, persistence.ErrRubricNotFound)
	}

	return &rubric, nil
}

func (rr *RubricRepository) GetByWorkflow(_ context.Context, workflowID string) ([]*models.WorkflowRubric, error) {
	rubrics := make([]*models.WorkflowRubric, 0)

	err := rr.store.list(rubricsDir, func(data []byte) error {
		var rubric models.WorkflowRubric
		if err := json.Unmarshal(data, &rubric); err != nil {
			return err
		}

		if rubric.WorkflowID == workflowID && rubric.DeletedAt == nil {
			rubrics = append(rubrics, &rubric)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(rubrics, func(i, j int) bool {
		return rubrics[i].CreatedAt.Before(rubrics[j].CreatedAt)
	})

	return rubrics, nil
}

// Delete soft-deletes a rubric so that past verdicts keep a resolvable name.
func (rr *RubricRepository) Delete(ctx context.Context, id string) error {
	rr.store.mu.Lock()
	defer rr.store.mu.Unlock()

	rubric, err := rr.GetByID(ctx, id)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	rubric.DeletedAt = &now
	rubric.UpdatedAt = now

	return rr.store.write(rubricsDir, id, rubric)
}
