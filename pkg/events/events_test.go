package events_test

import (
	"encoding/json"
	"testing"

	"github.com/dukex/agendaflow/pkg/events"
	"github.com/dukex/agendaflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBaseEvent(t *testing.T) {
	execution := &models.WorkflowExecution{
		ID:         "exec-1",
		WorkflowID: "wf-1",
		UserID:     "user-1",
		TargetDate: "2026-03-10",
		Status:     models.ExecutionStatusAwaitingUser,
	}

	base := events.NewBaseEvent(events.ExecutionProposedEvent, execution)

	assert.NotEmpty(t, base.ID)
	assert.Equal(t, events.ExecutionProposedEvent, base.Type)
	assert.Equal(t, "exec-1", base.ExecutionID)
	assert.Equal(t, models.ExecutionStatusAwaitingUser, base.Status)
	assert.False(t, base.Timestamp.IsZero())
}

func TestNew_DecodesEveryType(t *testing.T) {
	types := []events.EventType{
		events.ExecutionStartedEvent,
		events.ExecutionProposedEvent,
		events.ExecutionFailedEvent,
		events.ExecutionCompletedEvent,
		events.ExecutionRejectedEvent,
		events.ExecutionCancelledEvent,
		events.ExecutionIteratedEvent,
	}

	for _, eventType := range types {
		t.Run(string(eventType), func(t *testing.T) {
			target := events.New(eventType)
			require.NotNil(t, target)

			typed, ok := target.(interface{ GetType() events.EventType })
			require.True(t, ok)
			assert.Equal(t, eventType, typed.GetType())
		})
	}

	assert.Nil(t, events.New("workflow.unknown"))
}

func TestExecutionProposed_JSON(t *testing.T) {
	event := events.ExecutionProposed{
		BaseEvent:    events.BaseEvent{ID: "evt-1", Type: events.ExecutionProposedEvent, ExecutionID: "exec-1"},
		Iteration:    2,
		Score:        0.75,
		HardFailures: []string{"no overlapping items"},
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded events.ExecutionProposed
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "exec-1", decoded.ExecutionID)
	assert.Equal(t, 2, decoded.Iteration)
	assert.Equal(t, []string{"no overlapping items"}, decoded.HardFailures)
}
