package models

import "time"

// ExecutionStatus is the state of a workflow execution.
type ExecutionStatus string

const (
	ExecutionStatusPending      ExecutionStatus = "pending"
	ExecutionStatusGenerating   ExecutionStatus = "generating"
	ExecutionStatusAwaitingUser ExecutionStatus = "awaiting_user"
	ExecutionStatusIterating    ExecutionStatus = "iterating"
	ExecutionStatusFailed       ExecutionStatus = "failed"
	ExecutionStatusCompleted    ExecutionStatus = "completed"
	ExecutionStatusRejected     ExecutionStatus = "rejected"
	ExecutionStatusCancelled    ExecutionStatus = "cancelled"
)

// IsTerminal reports whether no further transition can leave the status.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusRejected, ExecutionStatusCancelled:
		return true
	default:
		return false
	}
}

// FeedbackRole identifies who authored a feedback entry.
type FeedbackRole string

const (
	FeedbackRoleUser   FeedbackRole = "user"
	FeedbackRoleSystem FeedbackRole = "system"
)

type FeedbackEntry struct {
	Role      FeedbackRole `json:"role"`
	Text      string       `json:"text"`
	Timestamp time.Time    `json:"timestamp"`
}

// WorkflowExecution is one run of a workflow for one (user, target date) pair. It is
// the only durable memory of the execution state machine.
type WorkflowExecution struct {
	ID         string          `json:"id"`
	WorkflowID string          `json:"workflow_id"`
	UserID     string          `json:"user_id"`
	TargetDate string          `json:"target_date"`
	Status     ExecutionStatus `json:"status"`
	InputData  map[string]any  `json:"input_data,omitempty"`
	Context    *PlanContext    `json:"context,omitempty"`
	Proposal   *AgendaProposal `json:"proposal,omitempty"`
	Results    []RubricResult  `json:"results,omitempty"`
	Iteration  int             `json:"iteration"`
	// Revision counts persisted writes; updates are conditional on it.
	Revision     int64           `json:"revision"`
	Feedback     []FeedbackEntry `json:"feedback,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// HardFailures returns the stored verdicts that block approval.
func (e *WorkflowExecution) HardFailures() []RubricResult {
	var failures []RubricResult

	for _, result := range e.Results {
		if result.IsHardFailure() {
			failures = append(failures, result)
		}
	}

	return failures
}

// LastUserFeedback returns the most recent feedback authored by the user.
func (e *WorkflowExecution) LastUserFeedback() string {
	for i := len(e.Feedback) - 1; i >= 0; i-- {
		if e.Feedback[i].Role == FeedbackRoleUser {
			return e.Feedback[i].Text
		}
	}

	return ""
}
