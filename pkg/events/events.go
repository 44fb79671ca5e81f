// Package events defines the execution lifecycle events published by the workflow executor.
package events

import (
	"time"

	"github.com/dukex/agendaflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every execution lifecycle event.
const Topic = "agendaflow.executions"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionProposedEvent  EventType = "execution.proposed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionRejectedEvent  EventType = "execution.rejected"
	ExecutionCancelledEvent EventType = "execution.cancelled"
	ExecutionIteratedEvent  EventType = "execution.iterated"
)

// EventTypes lists every lifecycle event in the order an execution can emit them.
var EventTypes = []EventType{
	ExecutionStartedEvent,
	ExecutionProposedEvent,
	ExecutionIteratedEvent,
	ExecutionFailedEvent,
	ExecutionCompletedEvent,
	ExecutionRejectedEvent,
	ExecutionCancelledEvent,
}

type BaseEvent struct {
	ID          string                 `json:"id"`
	Type        EventType              `json:"type"`
	Timestamp   time.Time              `json:"timestamp"`
	WorkflowID  string                 `json:"workflow_id"`
	ExecutionID string                 `json:"execution_id"`
	UserID      string                 `json:"user_id"`
	TargetDate  string                 `json:"target_date"`
	Status      models.ExecutionStatus `json:"status"`
}

// NewBaseEvent fills the envelope from the execution as it is after the transition.
func NewBaseEvent(eventType EventType, execution *models.WorkflowExecution) BaseEvent {
	return BaseEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		WorkflowID:  execution.WorkflowID,
		ExecutionID: execution.ID,
		UserID:      execution.UserID,
		TargetDate:  execution.TargetDate,
		Status:      execution.Status,
	}
}

// Key partitions events by execution so consumers see them in order.
func (e BaseEvent) Key() string {
	return e.ExecutionID
}

type ExecutionStarted struct {
	BaseEvent
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

// ExecutionProposed is published every time a candidate is presented to the user.
type ExecutionProposed struct {
	BaseEvent

	Iteration    int      `json:"iteration"`
	Score        float64  `json:"score"`
	Valid        bool     `json:"valid"`
	Items        int      `json:"items"`
	HardFailures []string `json:"hard_failures,omitempty"`
}

func (e ExecutionProposed) GetType() EventType {
	return ExecutionProposedEvent
}

type ExecutionFailed struct {
	BaseEvent

	Error string `json:"error"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	Score float64 `json:"score"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionRejected struct {
	BaseEvent

	Reason string `json:"reason,omitempty"`
}

func (e ExecutionRejected) GetType() EventType {
	return ExecutionRejectedEvent
}

type ExecutionCancelled struct {
	BaseEvent
}

func (e ExecutionCancelled) GetType() EventType {
	return ExecutionCancelledEvent
}

type ExecutionIterated struct {
	BaseEvent

	Iteration int    `json:"iteration"`
	Feedback  string `json:"feedback"`
}

func (e ExecutionIterated) GetType() EventType {
	return ExecutionIteratedEvent
}

// New returns an empty event of the given type for decoding, or nil if the type is unknown.
func New(eventType EventType) any {
	switch eventType {
	case ExecutionStartedEvent:
		return &ExecutionStarted{}
	case ExecutionProposedEvent:
		return &ExecutionProposed{}
	case ExecutionFailedEvent:
		return &ExecutionFailed{}
	case ExecutionCompletedEvent:
		return &ExecutionCompleted{}
	case ExecutionRejectedEvent:
		return &ExecutionRejected{}
	case ExecutionCancelledEvent:
		return &ExecutionCancelled{}
	case ExecutionIteratedEvent:
		return &ExecutionIterated{}
	default:
		return nil
	}
}
