package models

import (
	"slices"
	"time"
)

// ItemCategory is the closed set of agenda item categories.
type ItemCategory string

const (
	CategoryWork     ItemCategory = "work"
	CategoryHealth   ItemCategory = "health"
	CategoryPersonal ItemCategory = "personal"
	CategorySocial   ItemCategory = "social"
	CategoryAdmin    ItemCategory = "admin"
	CategoryOther    ItemCategory = "other"
)

// ItemCategories lists the allowed categories in a stable order.
var ItemCategories = []ItemCategory{
	CategoryWork, CategoryHealth, CategoryPersonal, CategorySocial, CategoryAdmin, CategoryOther,
}

func (c ItemCategory) IsValid() bool {
	return slices.Contains(ItemCategories, c)
}

// TimeRange is a half-open interval [Start, End).
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Title string    `json:"title,omitempty"`
}

// Overlaps reports whether the two ranges share any instant.
func (r TimeRange) Overlaps(other TimeRange) bool {
	return r.Start.Before(other.End) && other.Start.Before(r.End)
}

// Duration of the range; zero for inverted ranges.
func (r TimeRange) Duration() time.Duration {
	if !r.End.After(r.Start) {
		return 0
	}

	return r.End.Sub(r.Start)
}

// AgendaItem is a single block of the candidate plan.
type AgendaItem struct {
	Category  ItemCategory `json:"category"             validate:"required"`
	Title     string       `json:"title"                validate:"required"`
	Start     time.Time    `json:"start"                validate:"required"`
	End       time.Time    `json:"end"                  validate:"required,gtfield=Start"`
	Location  string       `json:"location,omitempty"`
	Notes     string       `json:"notes,omitempty"`
	Rationale string       `json:"rationale"`
	PursuitID string       `json:"pursuit_id,omitempty"`
}

// Range returns the time range the item occupies.
func (i AgendaItem) Range() TimeRange {
	return TimeRange{Start: i.Start, End: i.End, Title: i.Title}
}

// PursuitTarget is the weekly target a plan was synthesized against.
type PursuitTarget struct {
	PursuitID        string `json:"pursuit_id"`
	Name             string `json:"name"`
	RemainingMinutes int    `json:"remaining_minutes"`
}

// AgendaProposal is the candidate plan produced by synthesis and scored by the
// rubric evaluator. Commitments and Targets are copied from the context the plan was
// synthesized against so that evaluation needs nothing but the proposal.
type AgendaProposal struct {
	Date         string          `json:"date"`
	Summary      string          `json:"summary"`
	Items        []AgendaItem    `json:"items"`
	Commitments  []TimeRange     `json:"commitments,omitempty"`
	Targets      []PursuitTarget `json:"targets,omitempty"`
	Score        float64         `json:"score"`
	Valid        bool            `json:"valid"`
	Results      []RubricResult  `json:"results"`
	HardFailures []RubricResult  `json:"hard_failures"`
}

// TotalDuration sums the duration of every item.
func (p *AgendaProposal) TotalDuration() time.Duration {
	var total time.Duration
	for _, item := range p.Items {
		total += item.Range().Duration()
	}

	return total
}
