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

const rubricColumns = `
	id
  , workflow_id
  , user_id
  , category
  , name
  , description
  , constraint_type
  , rule
  , weight
  , active
  , created_at
  , updated_at
  , deleted_at`

// RubricRepository handles rubric-related database operations.
type RubricRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewRubricRepository(db *sql.DB, logger *slog.Logger) *RubricRepository {
	return &RubricRepository{db: db, logger: logger}
}

func (r *RubricRepository) Save(ctx context.Context, rubric *models.WorkflowRubric) error {
	now := time.Now().UTC()
	if rubric.CreatedAt.IsZero() {
		rubric.CreatedAt = now
	}

	rubric.UpdatedAt = now

	rule, err := json.Marshal(rubric.Rule)
	if err != nil {
		return fmt.Errorf("failed to marshal rule: %w", err)
	}

	query := `
		INSERT INTO workflow_rubrics (id, workflow_id, user_id, category, name, description, constraint_type, rule, weight, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			category = EXCLUDED.category,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			constraint_type = EXCLUDED.constraint_type,
			rule = EXCLUDED.rule,
			weight = EXCLUDED.weight,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		rubric.ID, rubric.WorkflowID, rubric.UserID, rubric.Category, rubric.Name, rubric.Description,
		string(rubric.Constraint), rule, rubric.Weight, rubric.Active, rubric.CreatedAt, rubric.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save rubric: %w", err)
	}

	return nil
}

func (r *RubricRepository) GetByID(ctx context.Context, id string) (*models.WorkflowRubric, error) {
	query := `SELECT ` + rubricColumns + ` FROM workflow_rubrics WHERE id = $1 AND deleted_at IS NULL`

	rubric, err := scanRubric(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("rubric %s: %w", id, persistence.ErrRubricNotFound)
		}

		return nil, fmt.Errorf("failed to scan rubric: %w", err)
	}

	return rubric, nil
}

func (r *RubricRepository) GetByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowRubric, error) {
	query := `SELECT ` + rubricColumns + ` FROM workflow_rubrics
		WHERE workflow_id = $1 AND deleted_at IS NULL
		ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rubrics: %w", err)
	}
	defer closeRows(ctx, r.logger, rows)

	rubrics := make([]*models.WorkflowRubric, 0)

	for rows.Next() {
		rubric, err := scanRubric(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rubric: %w", err)
		}

		rubrics = append(rubrics, rubric)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rubrics: %w", err)
	}

	return rubrics, nil
}

func (r *RubricRepository) Delete(ctx context.Context, id string) error {
	now := time.Now().UTC()

	result, err := r.db.ExecContext(ctx,
		`UPDATE workflow_rubrics SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, now)
	if err != nil {
		return fmt.Errorf("failed to delete rubric: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("rubric %s: %w", id, persistence.ErrRubricNotFound)
	}

	return nil
}

func scanRubric(row scanner) (*models.WorkflowRubric, error) {
	var (
		rubric     models.WorkflowRubric
		constraint string
		rule       []byte
		deletedAt  sql.NullTime
	)

	err := row.Scan(
		&rubric.ID, &rubric.WorkflowID, &rubric.UserID, &rubric.Category, &rubric.Name, &rubric.Description,
		&constraint, &rule, &rubric.Weight, &rubric.Active, &rubric.CreatedAt, &rubric.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	rubric.Constraint = models.ConstraintType(constraint)

	if err := json.Unmarshal(rule, &rubric.Rule); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rule: %w", err)
	}

	if deletedAt.Valid {
		rubric.DeletedAt = &deletedAt.Time
	}

	return &rubric, nil
}
