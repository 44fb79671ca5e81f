package workflow_test

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/agendaflow/pkg/mocks"
	"github.com/dukex/agendaflow/pkg/models"
	"github.com/dukex/agendaflow/pkg/providers"
	"github.com/dukex/agendaflow/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func gatherExecution() *models.WorkflowExecution {
	return &models.WorkflowExecution{ID: "exec-1", UserID: userID, TargetDate: targetDate, InputData: map[string]any{"focus": "writing"}}
}

func TestGather_AllProviders(t *testing.T) {
	calendar := &mocks.MockCalendarProvider{}
	calendar.On("CalendarContext", mock.Anything, userID, models.TimeRange{Start: at(7, 0), End: at(22, 0)}).
		Return(&models.CalendarContext{BusySlots: []models.TimeRange{{Start: at(12, 0), End: at(13, 0)}}}, nil)

	wellness := &mocks.MockWellnessProvider{}
	wellness.On("WellnessContext", mock.Anything, userID).Return(&models.WellnessContext{SleepHours: 7.5}, nil)

	financial := &mocks.MockFinancialProvider{}
	financial.On("FinancialContext", mock.Anything, userID).Return(&models.FinancialContext{Currency: "EUR"}, nil)

	pursuits := &mocks.MockPursuitProvider{}
	pursuits.On("Pursuits", mock.Anything, userID, targetDate).Return([]models.Pursuit{{ID: "run", WeeklyTargetHours: 3}}, nil)

	gatherer := workflow.NewGatherer(providers.Set{
		Calendar:  calendar,
		Wellness:  wellness,
		Financial: financial,
		Pursuits:  pursuits,
	}, slog.New(slog.DiscardHandler))

	wf := &models.Workflow{Integrations: models.Integrations}

	pc, err := gatherer.Gather(t.Context(), wf, gatherExecution())
	require.NoError(t, err)

	assert.Equal(t, userID, pc.UserID)
	assert.Equal(t, "writing", pc.InputData["focus"])
	require.NotNil(t, pc.Calendar)
	assert.Len(t, pc.Calendar.BusySlots, 1)
	require.NotNil(t, pc.Wellness)
	assert.InDelta(t, 7.5, pc.Wellness.SleepHours, 1e-9)
	require.NotNil(t, pc.Financial)
	assert.Equal(t, "EUR", pc.Financial.Currency)
	assert.Len(t, pc.Pursuits, 1)

	calendar.AssertExpectations(t)
	wellness.AssertExpectations(t)
	financial.AssertExpectations(t)
	pursuits.AssertExpectations(t)
}

func TestGather_SkipsDisabledIntegrations(t *testing.T) {
	calendar := &mocks.MockCalendarProvider{}
	wellness := &mocks.MockWellnessProvider{}
	pursuits := &mocks.MockPursuitProvider{}

	gatherer := workflow.NewGatherer(providers.Set{Calendar: calendar, Wellness: wellness, Pursuits: pursuits}, slog.New(slog.DiscardHandler))

	wf := &models.Workflow{
		Integrations: []models.Integration{models.IntegrationCalendar},
		Steps:        []*models.WorkflowStep{{Capability: models.CapabilitySynthesize}},
	}

	pc, err := gatherer.Gather(t.Context(), wf, gatherExecution())
	require.NoError(t, err)

	assert.Nil(t, pc.Calendar)
	assert.Nil(t, pc.Wellness)
	assert.Empty(t, pc.Pursuits)

	calendar.AssertNotCalled(t, "CalendarContext", mock.Anything, mock.Anything, mock.Anything)
	wellness.AssertNotCalled(t, "WellnessContext", mock.Anything, mock.Anything)
	pursuits.AssertNotCalled(t, "Pursuits", mock.Anything, mock.Anything, mock.Anything)
}

func TestGather_ProviderFailureLeavesSectionEmpty(t *testing.T) {
	calendar := &mocks.MockCalendarProvider{}
	calendar.On("CalendarContext", mock.Anything, userID, mock.Anything).Return(nil, errors.New("token expired"))

	wellness := &mocks.MockWellnessProvider{}
	wellness.On("WellnessContext", mock.Anything, userID).Return(&models.WellnessContext{RecoveryScore: 80}, nil)

	gatherer := workflow.NewGatherer(providers.Set{Calendar: calendar, Wellness: wellness}, slog.New(slog.DiscardHandler))

	wf := &models.Workflow{Integrations: []models.Integration{models.IntegrationCalendar, models.IntegrationWellness}}

	pc, err := gatherer.Gather(t.Context(), wf, gatherExecution())
	require.NoError(t, err)

	assert.Nil(t, pc.Calendar)
	require.NotNil(t, pc.Wellness)
	assert.Equal(t, 80, pc.Wellness.RecoveryScore)
}

func TestGather_WindowFollowsScheduleTimezone(t *testing.T) {
	gatherer := workflow.NewGatherer(providers.Set{}, slog.New(slog.DiscardHandler))

	wf := &models.Workflow{Schedule: &models.Schedule{Cron: "0 6 * * *", Timezone: "America/Sao_Paulo"}}

	pc, err := gatherer.Gather(t.Context(), wf, gatherExecution())
	require.NoError(t, err)

	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	assert.True(t, pc.Window.Start.Equal(time.Date(2026, 3, 10, 7, 0, 0, 0, loc)))

	wf.Schedule.Timezone = "Mars/Olympus"
	_, err = gatherer.Gather(t.Context(), wf, gatherExecution())
	assert.ErrorIs(t, err, models.ErrInvalidSchedule)
}

func TestGather_InvalidTargetDate(t *testing.T) {
	gatherer := workflow.NewGatherer(providers.Set{}, slog.New(slog.DiscardHandler))

	execution := gatherExecution()
	execution.TargetDate = "tomorrow"

	_, err := gatherer.Gather(t.Context(), &models.Workflow{}, execution)
	assert.Error(t, err)
}
