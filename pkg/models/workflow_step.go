package models

// Capability names what a workflow step does. Steps are opaque to the engine beyond
// deciding which context to gather.
type Capability string

const (
	CapabilityGatherCalendar  Capability = "gather_calendar"
	CapabilityGatherWellness  Capability = "gather_wellness"
	CapabilityGatherFinancial Capability = "gather_financial"
	CapabilityGatherPursuits  Capability = "gather_pursuits"
	CapabilitySynthesize      Capability = "synthesize"
	CapabilityEvaluate        Capability = "evaluate"
)

type WorkflowStep struct {
	Capability Capability     `json:"capability" validate:"required"`
	Name       string         `json:"name,omitempty"`
	Config     map[string]any `json:"config,omitempty"`
}
