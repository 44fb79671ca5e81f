package models

import "time"

// ConstraintType decides what a failing rubric does to a candidate plan.
type ConstraintType string

const (
	// ConstraintHard rubrics invalidate the plan and block approval when they fail.
	ConstraintHard ConstraintType = "hard"
	// ConstraintSoft rubrics only lower the aggregate score when they fail.
	ConstraintSoft ConstraintType = "soft"
)

// RuleKind tags which body of a ValidationRule is populated.
type RuleKind string

const (
	RuleKindExistence  RuleKind = "existence"
	RuleKindThreshold  RuleKind = "threshold"
	RuleKindPattern    RuleKind = "pattern"
	RuleKindStructural RuleKind = "structural"
)

// Comparator is the operator of a threshold rule.
type Comparator string

const (
	ComparatorLT  Comparator = "lt"
	ComparatorLTE Comparator = "lte"
	ComparatorGT  Comparator = "gt"
	ComparatorGTE Comparator = "gte"
	ComparatorEQ  Comparator = "eq"
	ComparatorNEQ Comparator = "neq"
)

// StructuralCheck names a cross-item check over the whole plan.
type StructuralCheck string

const (
	// CheckNoOverlap fails when two items share any time.
	CheckNoOverlap StructuralCheck = "no_overlap"
	// CheckChronological fails when items are not sorted by start time.
	CheckChronological StructuralCheck = "chronological"
	// CheckCountBetween bounds the number of items by Min and Max.
	CheckCountBetween StructuralCheck = "count_between"
	// CheckWithinHours requires every item to fall between Start and End ("HH:MM").
	CheckWithinHours StructuralCheck = "within_hours"
	// CheckAvoidsCommitments fails when an item overlaps a fixed calendar commitment.
	CheckAvoidsCommitments StructuralCheck = "avoids_commitments"
	// CheckRespectsTargets requires every pursuit with remaining weekly time to get at
	// least one item, without scheduling more than what remains.
	CheckRespectsTargets StructuralCheck = "respects_targets"
)

// ValidationRule is a closed tagged variant: Kind selects which one of the bodies
// is meaningful. Rules with an unknown kind or a missing body fail closed.
type ValidationRule struct {
	Kind       RuleKind        `json:"kind"                 yaml:"kind"                 validate:"required,oneof=existence threshold pattern structural"`
	Existence  *ExistenceRule  `json:"existence,omitempty"  yaml:"existence,omitempty"`
	Threshold  *ThresholdRule  `json:"threshold,omitempty"  yaml:"threshold,omitempty"`
	Pattern    *PatternRule    `json:"pattern,omitempty"    yaml:"pattern,omitempty"`
	Structural *StructuralRule `json:"structural,omitempty" yaml:"structural,omitempty"`
}

// ExistenceRule requires the field to be present and non-empty.
type ExistenceRule struct {
	Field string `json:"field" yaml:"field"`
}

// ThresholdRule compares a numeric field against Value.
type ThresholdRule struct {
	Field      string     `json:"field"      yaml:"field"`
	Comparator Comparator `json:"comparator" yaml:"comparator"`
	Value      float64    `json:"value"      yaml:"value"`
}

// PatternRule matches a string field against a regular expression.
type PatternRule struct {
	Field  string `json:"field"            yaml:"field"`
	Regex  string `json:"regex"            yaml:"regex"`
	Negate bool   `json:"negate,omitempty" yaml:"negate,omitempty"`
}

// StructuralRule runs a cross-item check.
type StructuralRule struct {
	Check StructuralCheck `json:"check"           yaml:"check"`
	Min   *int            `json:"min,omitempty"   yaml:"min,omitempty"`
	Max   *int            `json:"max,omitempty"   yaml:"max,omitempty"`
	Start string          `json:"start,omitempty" yaml:"start,omitempty"`
	End   string          `json:"end,omitempty"   yaml:"end,omitempty"`
}

// WorkflowRubric is a weighted scoring rule scoped to a workflow.
type WorkflowRubric struct {
	ID          string         `json:"id"`
	WorkflowID  string         `json:"workflow_id"`
	UserID      string         `json:"user_id"`
	Category    string         `json:"category"    yaml:"category"    validate:"required"`
	Name        string         `json:"name"        yaml:"name"        validate:"required"`
	Description string         `json:"description" yaml:"description"`
	Constraint  ConstraintType `json:"constraint"  yaml:"constraint"  validate:"required,oneof=hard soft"`
	Rule        ValidationRule `json:"rule"        yaml:"rule"`
	Weight      float64        `json:"weight"      yaml:"weight"      validate:"gte=0"`
	Active      bool           `json:"active"      yaml:"active"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   *time.Time     `json:"deleted_at,omitempty"`
}

// IsEvaluable reports whether the rubric takes part in evaluation.
func (r *WorkflowRubric) IsEvaluable() bool {
	return r != nil && r.Active && r.DeletedAt == nil
}

// RubricResult is the verdict of one rubric against one candidate plan.
type RubricResult struct {
	RubricID    string         `json:"rubric_id"`
	RubricName  string         `json:"rubric_name"`
	Constraint  ConstraintType `json:"constraint"`
	Passed      bool           `json:"passed"`
	Score       float64        `json:"score"`
	Weight      float64        `json:"weight"`
	Explanation string         `json:"explanation"`
}

// IsHardFailure reports whether the result blocks approval.
func (r RubricResult) IsHardFailure() bool {
	return !r.Passed && r.Constraint == ConstraintHard
}
