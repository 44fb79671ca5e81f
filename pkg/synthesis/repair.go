package synthesis

import (
	"fmt"
	"sort"

	"github.com/dukex/agendaflow/pkg/models"
)

// repair removes obvious defects from synthesized items: unknown categories become
// "other", inverted items and items outside the window are dropped, items that
// overlap a fixed commitment are dropped, and of two overlapping items the one that
// starts first is kept. The result is sorted chronologically. Subtler problems are
// left to the rubric evaluator.
func repair(items []models.AgendaItem, window models.TimeRange, commitments []models.TimeRange) ([]models.AgendaItem, []string) {
	var dropped []string

	candidates := make([]models.AgendaItem, 0, len(items))

	for _, item := range items {
		if !item.Category.IsValid() {
			item.Category = models.CategoryOther
		}

		if !item.End.After(item.Start) {
			dropped = append(dropped, fmt.Sprintf("%q ends before it starts", item.Title))

			continue
		}

		if item.Start.Before(window.Start) || item.End.After(window.End) {
			dropped = append(dropped, fmt.Sprintf("%q is outside the available window", item.Title))

			continue
		}

		if commitment, ok := conflicting(item, commitments); ok {
			dropped = append(dropped, fmt.Sprintf("%q overlaps fixed commitment %q", item.Title, commitment.Title))

			continue
		}

		candidates = append(candidates, item)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Start.Before(candidates[j].Start)
	})

	kept := make([]models.AgendaItem, 0, len(candidates))

	for _, item := range candidates {
		if len(kept) > 0 && kept[len(kept)-1].Range().Overlaps(item.Range()) {
			dropped = append(dropped, fmt.Sprintf("%q overlaps %q", item.Title, kept[len(kept)-1].Title))

			continue
		}

		kept = append(kept, item)
	}

	return kept, dropped
}

func conflicting(item models.AgendaItem, commitments []models.TimeRange) (models.TimeRange, bool) {
	for _, commitment := range commitments {
		if item.Range().Overlaps(commitment) {
			return commitment, true
		}
	}

	return models.TimeRange{}, false
}
