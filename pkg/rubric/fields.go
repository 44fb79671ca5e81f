package rubric

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukex/agendaflow/pkg/models"
)

// ErrUnknownField is returned when a rule references a field path the evaluator
// cannot extract from a plan.
var ErrUnknownField = errors.New("unknown field path")

const itemPrefix = "items[]."

// fieldValue is the result of extracting a path from a plan. When each is true the
// rule applies to every value, one per item.
type fieldValue struct {
	path   string
	each   bool
	values []any
}

var itemFields = map[string]func(models.AgendaItem) any{
	"category":         func(i models.AgendaItem) any { return string(i.Category) },
	"title":            func(i models.AgendaItem) any { return i.Title },
	"start":            func(i models.AgendaItem) any { return i.Start },
	"end":              func(i models.AgendaItem) any { return i.End },
	"location":         func(i models.AgendaItem) any { return i.Location },
	"notes":            func(i models.AgendaItem) any { return i.Notes },
	"rationale":        func(i models.AgendaItem) any { return i.Rationale },
	"pursuit_id":       func(i models.AgendaItem) any { return i.PursuitID },
	"duration_minutes": func(i models.AgendaItem) any { return i.Range().Duration().Minutes() },
}

// knownField checks a path without needing a plan.
func knownField(path string) error {
	_, err := extract(&models.AgendaProposal{}, path)

	return err
}

func extract(plan *models.AgendaProposal, path string) (fieldValue, error) {
	if name, ok := strings.CutPrefix(path, itemPrefix); ok {
		getter, found := itemFields[name]
		if !found {
			return fieldValue{}, fmt.Errorf("%w: %q", ErrUnknownField, path)
		}

		values := make([]any, 0, len(plan.Items))
		for _, item := range plan.Items {
			values = append(values, getter(item))
		}

		return fieldValue{path: path, each: true, values: values}, nil
	}

	value, err := scalar(plan, path)
	if err != nil {
		return fieldValue{}, err
	}

	return fieldValue{path: path, values: []any{value}}, nil
}

func scalar(plan *models.AgendaProposal, path string) (any, error) {
	switch path {
	case "summary":
		return plan.Summary, nil
	case "date":
		return plan.Date, nil
	case "items", "item_count":
		return float64(len(plan.Items)), nil
	case "total_minutes":
		return plan.TotalDuration().Minutes(), nil
	case "total_hours":
		return plan.TotalDuration().Hours(), nil
	}

	// categories.<category>.minutes | categories.<category>.count
	parts := strings.Split(path, ".")
	if len(parts) == 3 && parts[0] == "categories" {
		category := models.ItemCategory(parts[1])
		if !category.IsValid() {
			return nil, fmt.Errorf("%w: %q has unknown category", ErrUnknownField, path)
		}

		var (
			count   int
			minutes float64
		)

		for _, item := range plan.Items {
			if item.Category == category {
				count++
				minutes += item.Range().Duration().Minutes()
			}
		}

		switch parts[2] {
		case "minutes":
			return minutes, nil
		case "count":
			return float64(count), nil
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownField, path)
}

// isEmpty treats zero numbers as absent so that existence checks on counters
// behave like "at least one".
func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case float64:
		return v == 0
	case time.Time:
		return v.IsZero()
	default:
		return false
	}
}

func asNumber(value any) (float64, bool) {
	number, ok := value.(float64)

	return number, ok
}

func asString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}
