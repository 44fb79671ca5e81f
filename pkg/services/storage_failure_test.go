package services

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/dukex/agendaflow/pkg/mocks"
	"github.com/dukex/agendaflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errDiskFull = errors.New("disk full")

func TestWorkflow_HealthCheckUnhealthy(t *testing.T) {
	persistence := mocks.NewMockPersistence()
	persistence.On("HealthCheck", mock.Anything).Return(errors.New("connection refused"))

	service := NewWorkflow(persistence, nil, slog.New(slog.DiscardHandler))

	message, ok := service.HealthCheck(t.Context())
	assert.False(t, ok)
	assert.Equal(t, "Persistence layer is unhealthy: connection refused", message)
	persistence.AssertExpectations(t)
}

func TestWorkflow_CreateStorageFailure(t *testing.T) {
	persistence := mocks.NewMockPersistence()
	persistence.Workflows.On("Save", mock.Anything, mock.AnythingOfType("*models.Workflow")).Return(errDiskFull)

	service := NewWorkflow(persistence, nil, slog.New(slog.DiscardHandler))

	_, err := service.Create(t.Context(), "user-1", dailyPlan("daily"))
	require.ErrorIs(t, err, errDiskFull)
	assert.False(t, IsValidationError(err))
	assert.False(t, IsConflictError(err))

	persistence.Workflows.AssertExpectations(t)
	persistence.Rubrics.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestWorkflow_ListStorageFailure(t *testing.T) {
	persistence := mocks.NewMockPersistence()
	persistence.Workflows.On("ListByUser", mock.Anything, "user-1").Return(nil, errDiskFull)

	service := NewWorkflow(persistence, nil, slog.New(slog.DiscardHandler))

	_, err := service.List(t.Context(), "user-1")
	require.ErrorIs(t, err, errDiskFull)
}

func TestRubric_CreateStorageFailure(t *testing.T) {
	persistence := mocks.NewMockPersistence()
	persistence.Workflows.On("GetByID", mock.Anything, "wf-1").
		Return(&models.Workflow{ID: "wf-1", UserID: "user-1", Type: "daily_plan"}, nil)
	persistence.Rubrics.On("Save", mock.Anything, mock.AnythingOfType("*models.WorkflowRubric")).Return(errDiskFull)

	service := NewRubric(NewWorkflow(persistence, nil, slog.New(slog.DiscardHandler)), slog.New(slog.DiscardHandler))

	_, err := service.Create(t.Context(), "user-1", "wf-1", &models.WorkflowRubric{
		Category:   "structure",
		Name:       "Has summary",
		Constraint: models.ConstraintSoft,
		Weight:     1,
		Active:     true,
		Rule: models.ValidationRule{
			Kind:      models.RuleKindExistence,
			Existence: &models.ExistenceRule{Field: "summary"},
		},
	})
	require.ErrorIs(t, err, errDiskFull)
	persistence.Rubrics.AssertExpectations(t)
}
