package synthesis

import (
	"testing"
	"time"

	"github.com/dukex/agendaflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clock(hour, minute int) time.Time {
	return time.Date(2026, 3, 10, hour, minute, 0, 0, time.UTC)
}

func item(title string, category models.ItemCategory, startH, startM, endH, endM int) models.AgendaItem {
	return models.AgendaItem{
		Category: category,
		Title:    title,
		Start:    clock(startH, startM),
		End:      clock(endH, endM),
	}
}

func TestRepair(t *testing.T) {
	window := models.TimeRange{Start: clock(7, 0), End: clock(22, 0)}
	commitments := []models.TimeRange{{Start: clock(9, 0), End: clock(10, 0), Title: "Team Sync"}}

	items := []models.AgendaItem{
		item("Lunch", models.CategoryPersonal, 12, 0, 13, 0),
		item("Inverted", models.CategoryWork, 15, 0, 14, 0),
		item("Too early", models.CategoryHealth, 6, 0, 7, 30),
		item("Clashes with sync", models.CategoryWork, 9, 30, 10, 30),
		item("Deep work", "WORK?", 7, 30, 9, 0),
		item("Overlaps lunch", models.CategoryAdmin, 12, 30, 13, 30),
		item("Back to back", models.CategoryAdmin, 13, 0, 13, 30),
	}

	kept, dropped := repair(items, window, commitments)

	titles := make([]string, 0, len(kept))
	for _, it := range kept {
		titles = append(titles, it.Title)
	}

	assert.Equal(t, []string{"Deep work", "Lunch", "Back to back"}, titles)
	assert.Equal(t, models.CategoryOther, kept[0].Category)
	require.Len(t, dropped, 4)
	assert.Contains(t, dropped[2], "Team Sync")
}

func TestRepair_Empty(t *testing.T) {
	kept, dropped := repair(nil, models.TimeRange{Start: clock(7, 0), End: clock(22, 0)}, nil)

	assert.Empty(t, kept)
	assert.Empty(t, dropped)
}
