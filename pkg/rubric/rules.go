package rubric

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/dukex/agendaflow/pkg/models"
)

// ErrMalformedRule is wrapped by every static rule validation failure.
var ErrMalformedRule = errors.New("malformed validation rule")

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedRule, fmt.Sprintf(format, args...))
}

// ValidateRule statically checks that a rule can be evaluated. It does not need a plan.
func ValidateRule(rule models.ValidationRule) error {
	switch rule.Kind {
	case models.RuleKindExistence:
		if rule.Existence == nil {
			return malformed("existence rule without body")
		}

		return fieldError(rule.Existence.Field)
	case models.RuleKindThreshold:
		if rule.Threshold == nil {
			return malformed("threshold rule without body")
		}

		if _, err := comparatorFunc(rule.Threshold.Comparator); err != nil {
			return err
		}

		return fieldError(rule.Threshold.Field)
	case models.RuleKindPattern:
		if rule.Pattern == nil {
			return malformed("pattern rule without body")
		}

		if _, err := regexp.Compile(rule.Pattern.Regex); err != nil {
			return malformed("invalid regex %q: %v", rule.Pattern.Regex, err)
		}

		return fieldError(rule.Pattern.Field)
	case models.RuleKindStructural:
		if rule.Structural == nil {
			return malformed("structural rule without body")
		}

		return validateStructural(rule.Structural)
	case "":
		return malformed("rule kind is required")
	default:
		return malformed("unknown rule kind %q", rule.Kind)
	}
}

func fieldError(path string) error {
	if path == "" {
		return malformed("field is required")
	}

	if err := knownField(path); err != nil {
		return malformed("%v", err)
	}

	return nil
}

func validateStructural(rule *models.StructuralRule) error {
	switch rule.Check {
	case models.CheckNoOverlap, models.CheckChronological, models.CheckAvoidsCommitments, models.CheckRespectsTargets:
		return nil
	case models.CheckCountBetween:
		if rule.Min == nil && rule.Max == nil {
			return malformed("count_between needs min or max")
		}

		if rule.Min != nil && rule.Max != nil && *rule.Min > *rule.Max {
			return malformed("count_between min %d is greater than max %d", *rule.Min, *rule.Max)
		}

		return nil
	case models.CheckWithinHours:
		start, err := parseClock(rule.Start)
		if err != nil {
			return err
		}

		end, err := parseClock(rule.End)
		if err != nil {
			return err
		}

		if end <= start {
			return malformed("within_hours end %s must be after start %s", rule.End, rule.Start)
		}

		return nil
	default:
		return malformed("unknown structural check %q", rule.Check)
	}
}

const minutesPerDay = 24 * 60

// parseClock turns "HH:MM" into minutes since midnight. "24:00" closes the day.
func parseClock(value string) (int, error) {
	if value == "24:00" {
		return minutesPerDay, nil
	}

	clock, err := time.Parse("15:04", value)
	if err != nil {
		return 0, malformed("invalid clock %q, expected HH:MM", value)
	}

	return clock.Hour()*60 + clock.Minute(), nil
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// endMinute places end on the day of start. An end at midnight of the following day
// is minute 1440; any other end off that day is reported as not fitting.
func endMinute(start, end time.Time) (int, bool) {
	end = end.In(start.Location())

	if sameDate(start, end) {
		return minuteOfDay(end), true
	}

	if sameDate(start.AddDate(0, 0, 1), end) && minuteOfDay(end) == 0 && end.Second() == 0 && end.Nanosecond() == 0 {
		return minutesPerDay, true
	}

	return 0, false
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()

	return ay == by && am == bm && ad == bd
}

func comparatorFunc(comparator models.Comparator) (func(a, b float64) bool, error) {
	switch comparator {
	case models.ComparatorLT:
		return func(a, b float64) bool { return a < b }, nil
	case models.ComparatorLTE:
		return func(a, b float64) bool { return a <= b }, nil
	case models.ComparatorGT:
		return func(a, b float64) bool { return a > b }, nil
	case models.ComparatorGTE:
		return func(a, b float64) bool { return a >= b }, nil
	case models.ComparatorEQ:
		return func(a, b float64) bool { return a == b }, nil
	case models.ComparatorNEQ:
		return func(a, b float64) bool { return a != b }, nil
	default:
		return nil, malformed("unknown comparator %q", comparator)
	}
}

// check runs a validated rule and returns whether it passed with an explanation.
func check(plan *models.AgendaProposal, rule models.ValidationRule) (bool, string) {
	switch rule.Kind {
	case models.RuleKindExistence:
		return checkExistence(plan, rule.Existence)
	case models.RuleKindThreshold:
		return checkThreshold(plan, rule.Threshold)
	case models.RuleKindPattern:
		return checkPattern(plan, rule.Pattern)
	case models.RuleKindStructural:
		return checkStructural(plan, rule.Structural)
	default:
		return false, fmt.Sprintf("unknown rule kind %q", rule.Kind)
	}
}

func checkExistence(plan *models.AgendaProposal, rule *models.ExistenceRule) (bool, string) {
	field, err := extract(plan, rule.Field)
	if err != nil {
		return false, err.Error()
	}

	for index, value := range field.values {
		if isEmpty(value) {
			if field.each {
				return false, fmt.Sprintf("item %d (%s) has no %s", index, plan.Items[index].Title, rule.Field)
			}

			return false, fmt.Sprintf("%s is missing", rule.Field)
		}
	}

	if field.each {
		return true, fmt.Sprintf("all %d items have %s", len(field.values), rule.Field)
	}

	return true, fmt.Sprintf("%s is present", rule.Field)
}

func checkThreshold(plan *models.AgendaProposal, rule *models.ThresholdRule) (bool, string) {
	compare, err := comparatorFunc(rule.Comparator)
	if err != nil {
		return false, err.Error()
	}

	field, err := extract(plan, rule.Field)
	if err != nil {
		return false, err.Error()
	}

	for index, value := range field.values {
		number, ok := asNumber(value)
		if !ok {
			return false, fmt.Sprintf("%s is not numeric", rule.Field)
		}

		if !compare(number, rule.Value) {
			if field.each {
				return false, fmt.Sprintf("item %d (%s): %s = %.2f, expected %s %.2f",
					index, plan.Items[index].Title, rule.Field, number, rule.Comparator, rule.Value)
			}

			return false, fmt.Sprintf("%s = %.2f, expected %s %.2f", rule.Field, number, rule.Comparator, rule.Value)
		}
	}

	return true, fmt.Sprintf("%s %s %.2f", rule.Field, rule.Comparator, rule.Value)
}

func checkPattern(plan *models.AgendaProposal, rule *models.PatternRule) (bool, string) {
	expr, err := regexp.Compile(rule.Regex)
	if err != nil {
		return false, fmt.Sprintf("invalid regex %q: %v", rule.Regex, err)
	}

	field, err := extract(plan, rule.Field)
	if err != nil {
		return false, err.Error()
	}

	for index, value := range field.values {
		matched := expr.MatchString(asString(value))
		if matched == rule.Negate {
			verb := "does not match"
			if rule.Negate {
				verb = "matches"
			}

			if field.each {
				return false, fmt.Sprintf("item %d (%s): %s %s %q", index, plan.Items[index].Title, rule.Field, verb, rule.Regex)
			}

			return false, fmt.Sprintf("%s %s %q", rule.Field, verb, rule.Regex)
		}
	}

	return true, fmt.Sprintf("%s satisfies %q", rule.Field, rule.Regex)
}

func checkStructural(plan *models.AgendaProposal, rule *models.StructuralRule) (bool, string) {
	if err := validateStructural(rule); err != nil {
		return false, err.Error()
	}

	switch rule.Check {
	case models.CheckNoOverlap:
		return checkNoOverlap(plan.Items)
	case models.CheckChronological:
		for i := 1; i < len(plan.Items); i++ {
			if plan.Items[i].Start.Before(plan.Items[i-1].Start) {
				return false, fmt.Sprintf("%q starts before %q", plan.Items[i].Title, plan.Items[i-1].Title)
			}
		}

		return true, "items are in chronological order"
	case models.CheckCountBetween:
		count := len(plan.Items)
		if rule.Min != nil && count < *rule.Min {
			return false, fmt.Sprintf("%d items, expected at least %d", count, *rule.Min)
		}

		if rule.Max != nil && count > *rule.Max {
			return false, fmt.Sprintf("%d items, expected at most %d", count, *rule.Max)
		}

		return true, fmt.Sprintf("%d items within bounds", count)
	case models.CheckWithinHours:
		start, _ := parseClock(rule.Start)
		end, _ := parseClock(rule.End)

		for _, item := range plan.Items {
			itemEnd, fits := endMinute(item.Start, item.End)
			if !fits || minuteOfDay(item.Start) < start || itemEnd > end {
				return false, fmt.Sprintf("%q is outside %s-%s", item.Title, rule.Start, rule.End)
			}
		}

		return true, fmt.Sprintf("all items within %s-%s", rule.Start, rule.End)
	case models.CheckAvoidsCommitments:
		for _, item := range plan.Items {
			for _, commitment := range plan.Commitments {
				if item.Range().Overlaps(commitment) {
					return false, fmt.Sprintf("%q overlaps fixed commitment %q", item.Title, commitment.Title)
				}
			}
		}

		return true, fmt.Sprintf("no item overlaps %d fixed commitments", len(plan.Commitments))
	case models.CheckRespectsTargets:
		return checkTargets(plan)
	default:
		return false, fmt.Sprintf("unknown structural check %q", rule.Check)
	}
}

func checkNoOverlap(items []models.AgendaItem) (bool, string) {
	sorted := make([]models.AgendaItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	for i := 1; i < len(sorted); i++ {
		if sorted[i-1].Range().Overlaps(sorted[i].Range()) {
			return false, fmt.Sprintf("%q overlaps %q", sorted[i-1].Title, sorted[i].Title)
		}
	}

	return true, "no overlapping items"
}

func checkTargets(plan *models.AgendaProposal) (bool, string) {
	if len(plan.Targets) == 0 {
		return true, "no open weekly targets"
	}

	scheduled := make(map[string]int)
	for _, item := range plan.Items {
		if item.PursuitID != "" {
			scheduled[item.PursuitID] += int(item.Range().Duration().Minutes())
		}
	}

	for _, target := range plan.Targets {
		if target.RemainingMinutes <= 0 {
			continue
		}

		minutes := scheduled[target.PursuitID]
		if minutes == 0 {
			return false, fmt.Sprintf("pursuit %q has %d minutes left this week but nothing scheduled",
				target.Name, target.RemainingMinutes)
		}

		if minutes > target.RemainingMinutes {
			return false, fmt.Sprintf("pursuit %q scheduled for %d minutes, only %d left this week",
				target.Name, minutes, target.RemainingMinutes)
		}
	}

	return true, fmt.Sprintf("%d weekly targets respected", len(plan.Targets))
}
