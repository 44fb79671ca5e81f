package file

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/dukex/agendaflow/pkg/models"
	"github.com/dukex/agendaflow/pkg/persistence"
)

// ExecutionRepository handles execution-related file operations.
type ExecutionRepository struct {
	store *store
}

func (er *ExecutionRepository) Create(_ context.Context, execution *models.WorkflowExecution) error {
	er.store.mu.Lock()
	defer er.store.mu.Unlock()

	var existing models.WorkflowExecution

	found, err := er.store.read(executionsDir, execution.ID, &existing)
	if err != nil {
		return err
	}

	if found {
		return &persistence.ExecutionError{Op: "Create", ExecutionID: execution.ID, Err: persistence.ErrExecutionAlreadyExists}
	}

	now := time.Now().UTC()
	if execution.CreatedAt.IsZero() {
		execution.CreatedAt = now
	}

	execution.UpdatedAt = now

	return er.store.write(executionsDir, execution.ID, execution)
}

func (er *ExecutionRepository) GetByID(_ context.Context, id string) (*models.WorkflowExecution, error) {
	var execution models.WorkflowExecution

	found, err := er.store.read(executionsDir, id, &execution)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, &persistence.ExecutionError{Op: "GetByID", ExecutionID: id, Err: persistence.ErrExecutionNotFound}
	}

	return &execution, nil
}

// Update re-reads the stored record under the lock and writes only if its status and
// revision are still the ones the caller read.
func (er *ExecutionRepository) Update(
	_ context.Context,
	execution *models.WorkflowExecution,
	expected models.ExecutionStatus,
) error {
	er.store.mu.Lock()
	defer er.store.mu.Unlock()

	var stored models.WorkflowExecution

	found, err := er.store.read(executionsDir, execution.ID, &stored)
	if err != nil {
		return err
	}

	if !found {
		return &persistence.ExecutionError{Op: "Update", ExecutionID: execution.ID, Err: persistence.ErrExecutionNotFound}
	}

	if stored.Status != expected || stored.Revision != execution.Revision {
		return &persistence.ExecutionError{
			Op:          "Update",
			ExecutionID: execution.ID,
			Expected:    string(expected),
			Err:         persistence.ErrStatusConflict,
		}
	}

	next := *execution
	next.CreatedAt = stored.CreatedAt
	next.UpdatedAt = time.Now().UTC()
	next.Revision++

	if err := er.store.write(executionsDir, execution.ID, &next); err != nil {
		return err
	}

	*execution = next

	return nil
}

func (er *ExecutionRepository) ListByWorkflow(_ context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	executions := make([]*models.WorkflowExecution, 0)

	err := er.store.list(executionsDir, func(data []byte) error {
		var execution models.WorkflowExecution
		if err := json.Unmarshal(data, &execution); err != nil {
			return err
		}

		if execution.WorkflowID == workflowID {
			executions = append(executions, &execution)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].CreatedAt.After(executions[j].CreatedAt)
	})

	return executions, nil
}
