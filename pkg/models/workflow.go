// Package models defines the core domain models for agenda planning workflows
package models

import (
	"slices"
	"time"
)

// Integration names a third-party data source a workflow may read context from.
type Integration string

const (
	IntegrationCalendar  Integration = "calendar"
	IntegrationWellness  Integration = "wellness"
	IntegrationFinancial Integration = "financial"
)

// Integrations lists every integration the engine knows how to gather.
var Integrations = []Integration{IntegrationCalendar, IntegrationWellness, IntegrationFinancial}

// IsValid reports whether the integration is one the engine can gather.
func (i Integration) IsValid() bool {
	return slices.Contains(Integrations, i)
}

// Workflow is a named, user-owned template describing what kind of plan to generate
// and which integrations feed it.
type Workflow struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"                validate:"required"`
	Slug         string          `json:"slug"                   validate:"required,min=2,max=64"`
	Name         string          `json:"name"                   validate:"required,min=3"`
	Description  string          `json:"description"`
	Type         string          `json:"type"                   validate:"required"`
	Steps        []*WorkflowStep `json:"steps"                  validate:"dive"`
	Integrations []Integration   `json:"integrations"`
	Schedule     *Schedule       `json:"schedule,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	DeletedAt    *time.Time      `json:"deleted_at,omitempty"`
}

// HasIntegration reports whether the workflow enables the given integration.
func (w *Workflow) HasIntegration(integration Integration) bool {
	return slices.Contains(w.Integrations, integration)
}

// HasCapability reports whether any step of the workflow names the capability.
// A workflow without steps is treated as having every capability.
func (w *Workflow) HasCapability(capability Capability) bool {
	if len(w.Steps) == 0 {
		return true
	}

	for _, step := range w.Steps {
		if step.Capability == capability {
			return true
		}
	}

	return false
}
