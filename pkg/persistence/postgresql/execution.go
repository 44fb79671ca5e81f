package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/agendaflow/pkg/models"
	"github.com/dukex/agendaflow/pkg/persistence"
)

const executionColumns = `
	id
  , workflow_id
  , user_id
  , to_char(target_date, 'YYYY-MM-DD')
  , status
  , input_data
  , context
  , proposal
  , results
  , iteration
  , revision
  , feedback
  , error_message
  , created_at
  , updated_at
  , completed_at`

// ExecutionRepository handles execution-related database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

type executionDocuments struct {
	inputData []byte
	context   []byte
	proposal  []byte
	results   []byte
	feedback  []byte
}

func marshalNullable(value any, isNil bool) ([]byte, error) {
	if isNil {
		return nil, nil
	}

	return json.Marshal(value)
}

func marshalExecution(execution *models.WorkflowExecution) (*executionDocuments, error) {
	var (
		docs executionDocuments
		err  error
	)

	if docs.inputData, err = marshalNullable(execution.InputData, execution.InputData == nil); err != nil {
		return nil, fmt.Errorf("failed to marshal input data: %w", err)
	}

	if docs.context, err = marshalNullable(execution.Context, execution.Context == nil); err != nil {
		return nil, fmt.Errorf("failed to marshal context: %w", err)
	}

	if docs.proposal, err = marshalNullable(execution.Proposal, execution.Proposal == nil); err != nil {
		return nil, fmt.Errorf("failed to marshal proposal: %w", err)
	}

	if docs.results, err = marshalNullable(execution.Results, execution.Results == nil); err != nil {
		return nil, fmt.Errorf("failed to marshal results: %w", err)
	}

	feedback := execution.Feedback
	if feedback == nil {
		feedback = []models.FeedbackEntry{}
	}

	if docs.feedback, err = json.Marshal(feedback); err != nil {
		return nil, fmt.Errorf("failed to marshal feedback: %w", err)
	}

	return &docs, nil
}

func (r *ExecutionRepository) Create(ctx context.Context, execution *models.WorkflowExecution) error {
	now := time.Now().UTC()
	if execution.CreatedAt.IsZero() {
		execution.CreatedAt = now
	}

	execution.UpdatedAt = now

	docs, err := marshalExecution(execution)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflow_executions (
			id, workflow_id, user_id, target_date, status, input_data, context, proposal, results,
			iteration, revision, feedback, error_message, created_at, updated_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID, execution.WorkflowID, execution.UserID, execution.TargetDate, string(execution.Status),
		docs.inputData, docs.context, docs.proposal, docs.results,
		execution.Iteration, execution.Revision, docs.feedback, execution.ErrorMessage,
		execution.CreatedAt, execution.UpdatedAt, execution.CompletedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &persistence.ExecutionError{Op: "Create", ExecutionID: execution.ID, Err: persistence.ErrExecutionAlreadyExists}
		}

		return fmt.Errorf("failed to create execution: %w", err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM workflow_executions WHERE id = $1`

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &persistence.ExecutionError{Op: "GetByID", ExecutionID: id, Err: persistence.ErrExecutionNotFound}
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return execution, nil
}

// Update is a compare-and-swap on status and revision: the row is written only while
// its stored status equals expected and its revision equals execution.Revision.
func (r *ExecutionRepository) Update(
	ctx context.Context,
	execution *models.WorkflowExecution,
	expected models.ExecutionStatus,
) error {
	updatedAt := time.Now().UTC()

	docs, err := marshalExecution(execution)
	if err != nil {
		return err
	}

	query := `
		UPDATE workflow_executions SET
			status = $3,
			input_data = $4,
			context = $5,
			proposal = $6,
			results = $7,
			iteration = $8,
			feedback = $9,
			error_message = $10,
			updated_at = $11,
			completed_at = $12,
			revision = revision + 1
		WHERE id = $1 AND status = $2 AND revision = $13
	`

	result, err := r.db.ExecContext(ctx, query,
		execution.ID, string(expected), string(execution.Status),
		docs.inputData, docs.context, docs.proposal, docs.results,
		execution.Iteration, docs.feedback, execution.ErrorMessage,
		updatedAt, execution.CompletedAt, execution.Revision,
	)
	if err != nil {
		return fmt.Errorf("failed to update execution: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 1 {
		execution.UpdatedAt = updatedAt
		execution.Revision++

		return nil
	}

	var exists bool

	err = r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM workflow_executions WHERE id = $1)`, execution.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check execution: %w", err)
	}

	if !exists {
		return &persistence.ExecutionError{Op: "Update", ExecutionID: execution.ID, Err: persistence.ErrExecutionNotFound}
	}

	return &persistence.ExecutionError{
		Op:          "Update",
		ExecutionID: execution.ID,
		Expected:    string(expected),
		Err:         persistence.ErrStatusConflict,
	}
}

func (r *ExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM workflow_executions WHERE workflow_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer closeRows(ctx, r.logger, rows)

	executions := make([]*models.WorkflowExecution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

func scanExecution(row scanner) (*models.WorkflowExecution, error) {
	var (
		execution   models.WorkflowExecution
		status      string
		inputData   []byte
		planContext []byte
		proposal    []byte
		results     []byte
		feedback    []byte
		completedAt sql.NullTime
	)

	err := row.Scan(
		&execution.ID, &execution.WorkflowID, &execution.UserID, &execution.TargetDate, &status,
		&inputData, &planContext, &proposal, &results, &execution.Iteration, &execution.Revision, &feedback,
		&execution.ErrorMessage, &execution.CreatedAt, &execution.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	execution.Status = models.ExecutionStatus(status)

	documents := []struct {
		name   string
		data   []byte
		target any
	}{
		{"input data", inputData, &execution.InputData},
		{"context", planContext, &execution.Context},
		{"proposal", proposal, &execution.Proposal},
		{"results", results, &execution.Results},
		{"feedback", feedback, &execution.Feedback},
	}

	for _, doc := range documents {
		if len(doc.data) == 0 {
			continue
		}

		if err := json.Unmarshal(doc.data, doc.target); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", doc.name, err)
		}
	}

	if completedAt.Valid {
		execution.CompletedAt = &completedAt.Time
	}

	return &execution, nil
}
