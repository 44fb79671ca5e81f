// Package web provides the HTTP API of the agenda workflow engine.
package web

import (
	"github.com/dukex/agendaflow/pkg/models"
	"github.com/dukex/agendaflow/pkg/workflow"
)

// CreateWorkflowRequest represents the request body for creating a new workflow.
type CreateWorkflowRequest struct {
	Slug         string                 `json:"slug"         validate:"required,min=2,max=64"`
	Name         string                 `json:"name"         validate:"required,min=3"`
	Description  string                 `json:"description"`
	Type         string                 `json:"type"         validate:"required"`
	Steps        []*models.WorkflowStep `json:"steps"`
	Integrations []models.Integration   `json:"integrations"`
	Schedule     *models.Schedule       `json:"schedule,omitempty"`
}

// UpdateWorkflowRequest represents the request body for updating an existing workflow.
// All fields are optional to support partial updates.
type UpdateWorkflowRequest struct {
	Slug         *string                `json:"slug,omitempty"         validate:"omitempty,min=2,max=64"`
	Name         *string                `json:"name,omitempty"         validate:"omitempty,min=3"`
	Description  *string                `json:"description,omitempty"`
	Type         *string                `json:"type,omitempty"`
	Steps        []*models.WorkflowStep `json:"steps,omitempty"`
	Integrations []models.Integration   `json:"integrations,omitempty"`
	Schedule     *models.Schedule       `json:"schedule,omitempty"`
	// ClearSchedule removes the schedule, making the workflow manual only.
	ClearSchedule bool `json:"clear_schedule,omitempty"`
}

// Apply copies the present fields onto the workflow.
func (r UpdateWorkflowRequest) Apply(workflow *models.Workflow) {
	if r.Slug != nil {
		workflow.Slug = *r.Slug
	}

	if r.Name != nil {
		workflow.Name = *r.Name
	}

	if r.Description != nil {
		workflow.Description = *r.Description
	}

	if r.Type != nil {
		workflow.Type = *r.Type
	}

	if r.Steps != nil {
		workflow.Steps = r.Steps
	}

	if r.Integrations != nil {
		workflow.Integrations = r.Integrations
	}

	if r.Schedule != nil {
		workflow.Schedule = r.Schedule
	}

	if r.ClearSchedule {
		workflow.Schedule = nil
	}
}

// CreateRubricRequest represents the request body for adding a rubric to a workflow.
type CreateRubricRequest struct {
	Category    string                `json:"category"    validate:"required"`
	Name        string                `json:"name"        validate:"required"`
	Description string                `json:"description"`
	Constraint  models.ConstraintType `json:"constraint"  validate:"required,oneof=hard soft"`
	Rule        models.ValidationRule `json:"rule"`
	Weight      float64               `json:"weight"      validate:"gte=0"`
	Active      *bool                 `json:"active,omitempty"`
}

// Rubric builds the model. Rubrics are active unless the request says otherwise.
func (r CreateRubricRequest) Rubric() *models.WorkflowRubric {
	active := true
	if r.Active != nil {
		active = *r.Active
	}

	return &models.WorkflowRubric{
		Category:    r.Category,
		Name:        r.Name,
		Description: r.Description,
		Constraint:  r.Constraint,
		Rule:        r.Rule,
		Weight:      r.Weight,
		Active:      active,
	}
}

// ExecuteRequest represents the request body for starting an execution.
type ExecuteRequest struct {
	WorkflowID   string         `json:"workflow_id"   validate:"required_without=WorkflowSlug"`
	WorkflowSlug string         `json:"workflow_slug" validate:"required_without=WorkflowID"`
	TargetDate   string         `json:"target_date"   validate:"required,datetime=2006-01-02"`
	InputData    map[string]any `json:"input_data,omitempty"`
}

// ResumeRequest represents the user decision on the presented candidate.
type ResumeRequest struct {
	Action   workflow.Action `json:"action"   validate:"required,oneof=approve reject iterate"`
	Feedback string          `json:"feedback"`
}

// ExecutionResponse is the body returned for every execution operation.
type ExecutionResponse struct {
	Execution *models.WorkflowExecution `json:"execution"`
	Proposal  *models.AgendaProposal    `json:"proposal,omitempty"`
}

func newExecutionResponse(outcome *workflow.Outcome) ExecutionResponse {
	return ExecutionResponse{Execution: outcome.Execution, Proposal: outcome.Proposal}
}

// ExecutionErrorResponse carries the execution a failed operation left behind.
type ExecutionErrorResponse struct {
	ExecutionResponse

	Error    any                   `json:"error"`
	Blocking []models.RubricResult `json:"blocking,omitempty"`
}
