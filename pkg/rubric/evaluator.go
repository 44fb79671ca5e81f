// Package rubric scores candidate agenda proposals against weighted validation rules.
package rubric

import (
	"fmt"

	"github.com/dukex/agendaflow/pkg/models"
)

// ValidationResult is the verdict of one evaluation pass.
type ValidationResult struct {
	Results        []models.RubricResult `json:"results"`
	AggregateScore float64               `json:"aggregate_score"`
	HardFailures   []models.RubricResult `json:"hard_failures"`
	Valid          bool                  `json:"valid"`
}

// Evaluate scores the plan against every active, non-deleted rubric, in order.
//
// The aggregate score is the weighted mean of per-rubric scores, where a passing rubric
// contributes its weight and a failing one contributes zero. It is 0 when no rubric is
// evaluated or the total weight is zero. Valid is false when any hard rubric fails.
// Malformed rules fail closed with an explanation. Evaluate is pure: the same inputs
// always produce the same result.
func Evaluate(plan *models.AgendaProposal, rubrics []*models.WorkflowRubric) ValidationResult {
	result := ValidationResult{
		Results:      []models.RubricResult{},
		HardFailures: []models.RubricResult{},
		Valid:        true,
	}

	if plan == nil {
		plan = &models.AgendaProposal{}
	}

	var totalWeight, passedWeight float64

	for _, rubric := range rubrics {
		if !rubric.IsEvaluable() {
			continue
		}

		verdict := evaluateOne(plan, rubric)

		totalWeight += max(rubric.Weight, 0)
		passedWeight += verdict.Score

		result.Results = append(result.Results, verdict)

		if verdict.IsHardFailure() {
			result.HardFailures = append(result.HardFailures, verdict)
			result.Valid = false
		}
	}

	if totalWeight > 0 {
		result.AggregateScore = passedWeight / totalWeight
	}

	return result
}

func evaluateOne(plan *models.AgendaProposal, rubric *models.WorkflowRubric) models.RubricResult {
	verdict := models.RubricResult{
		RubricID:   rubric.ID,
		RubricName: rubric.Name,
		Constraint: rubric.Constraint,
		Weight:     rubric.Weight,
	}

	if rubric.Constraint != models.ConstraintHard && rubric.Constraint != models.ConstraintSoft {
		// Unknown constraints count as hard.
		verdict.Constraint = models.ConstraintHard
		verdict.Explanation = fmt.Sprintf("unknown constraint type %q", rubric.Constraint)

		return verdict
	}

	if err := ValidateRule(rubric.Rule); err != nil {
		verdict.Explanation = err.Error()

		return verdict
	}

	passed, explanation := check(plan, rubric.Rule)

	verdict.Passed = passed
	verdict.Explanation = explanation

	if passed && rubric.Weight > 0 {
		verdict.Score = rubric.Weight
	}

	return verdict
}

// Apply stores a validation result on the proposal it was computed for.
func Apply(plan *models.AgendaProposal, result ValidationResult) {
	plan.Score = result.AggregateScore
	plan.Valid = result.Valid
	plan.Results = result.Results
	plan.HardFailures = result.HardFailures
}
