package rubric

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/dukex/agendaflow/pkg/models"
	"gopkg.in/yaml.v3"
)

// WildcardType keys default rubrics that apply to every workflow type.
const WildcardType = "*"

//go:embed defaults.yaml
var defaultsYAML []byte

var (
	defaultsOnce sync.Once
	defaults     map[string][]*models.WorkflowRubric
	defaultsErr  error
)

// ParseDefaults decodes a YAML document mapping workflow types to rubric seeds and
// statically validates every rule.
func ParseDefaults(data []byte) (map[string][]*models.WorkflowRubric, error) {
	var seeds map[string][]*models.WorkflowRubric

	err := yaml.Unmarshal(data, &seeds)
	if err != nil {
		return nil, fmt.Errorf("failed to decode default rubrics: %w", err)
	}

	for workflowType, rubrics := range seeds {
		for _, rubric := range rubrics {
			if err := ValidateRule(rubric.Rule); err != nil {
				return nil, fmt.Errorf("default rubric %q for %s: %w", rubric.Name, workflowType, err)
			}
		}
	}

	return seeds, nil
}

// DefaultRubrics returns fresh copies of the seeds for a workflow type, wildcard
// rubrics first. IDs and ownership are left empty for the caller to fill.
func DefaultRubrics(workflowType string) ([]*models.WorkflowRubric, error) {
	defaultsOnce.Do(func() {
		defaults, defaultsErr = ParseDefaults(defaultsYAML)
	})

	if defaultsErr != nil {
		return nil, defaultsErr
	}

	seeds := append([]*models.WorkflowRubric{}, defaults[WildcardType]...)
	if workflowType != WildcardType {
		seeds = append(seeds, defaults[workflowType]...)
	}

	rubrics := make([]*models.WorkflowRubric, 0, len(seeds))

	for _, seed := range seeds {
		rubric := *seed
		rubric.Rule = copyRule(seed.Rule)
		rubrics = append(rubrics, &rubric)
	}

	return rubrics, nil
}

func copyRule(rule models.ValidationRule) models.ValidationRule {
	out := models.ValidationRule{Kind: rule.Kind}

	if rule.Existence != nil {
		existence := *rule.Existence
		out.Existence = &existence
	}

	if rule.Threshold != nil {
		threshold := *rule.Threshold
		out.Threshold = &threshold
	}

	if rule.Pattern != nil {
		pattern := *rule.Pattern
		out.Pattern = &pattern
	}

	if rule.Structural != nil {
		structural := *rule.Structural
		out.Structural = &structural
	}

	return out
}
