package models

import (
	"fmt"
	"time"
)

// CalendarEvent is an entry of the user's calendar. Fixed events must never be
// double-booked by a plan.
type CalendarEvent struct {
	Title    string    `json:"title"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Location string    `json:"location,omitempty"`
	Fixed    bool      `json:"fixed"`
}

// CalendarContext is what a calendar provider returns for a time window.
type CalendarContext struct {
	Events    []CalendarEvent `json:"events"`
	BusySlots []TimeRange     `json:"busy_slots"`
}

// Commitments returns every range the plan must not overlap.
func (c *CalendarContext) Commitments() []TimeRange {
	if c == nil {
		return nil
	}

	commitments := make([]TimeRange, 0, len(c.Events)+len(c.BusySlots))

	for _, event := range c.Events {
		if event.Fixed {
			commitments = append(commitments, TimeRange{Start: event.Start, End: event.End, Title: event.Title})
		}
	}

	commitments = append(commitments, c.BusySlots...)

	return commitments
}

// WellnessContext carries sleep and recovery signals. Scores are 0-100.
type WellnessContext struct {
	SleepHours    float64 `json:"sleep_hours"`
	SleepScore    int     `json:"sleep_score"`
	RecoveryScore int     `json:"recovery_score"`
	ActivityScore int     `json:"activity_score"`
}

// FinancialContext is a read-only spending summary.
type FinancialContext struct {
	Currency      string   `json:"currency"`
	Balance       float64  `json:"balance"`
	SpentThisWeek float64  `json:"spent_this_week"`
	WeeklyBudget  float64  `json:"weekly_budget"`
	UpcomingBills []string `json:"upcoming_bills,omitempty"`
}

// Pursuit is an active goal with a weekly time target.
type Pursuit struct {
	ID                string       `json:"id"`
	Name              string       `json:"name"`
	Category          ItemCategory `json:"category"`
	WeeklyTargetHours float64      `json:"weekly_target_hours"`
	LoggedHours       float64      `json:"logged_hours"`
}

// RemainingMinutes is how much of the weekly target is still open.
func (p Pursuit) RemainingMinutes() int {
	remaining := (p.WeeklyTargetHours - p.LoggedHours) * 60
	if remaining <= 0 {
		return 0
	}

	return int(remaining)
}

// PlanContext is everything the synthesizer knows when building a plan. A nil
// section means the collaborator was not connected or failed.
type PlanContext struct {
	UserID     string            `json:"user_id"`
	TargetDate string            `json:"target_date"`
	Window     TimeRange         `json:"window"`
	Calendar   *CalendarContext  `json:"calendar,omitempty"`
	Wellness   *WellnessContext  `json:"wellness,omitempty"`
	Financial  *FinancialContext `json:"financial,omitempty"`
	Pursuits   []Pursuit         `json:"pursuits,omitempty"`
	InputData  map[string]any    `json:"input_data,omitempty"`
}

// Targets returns the pursuit targets that still have time remaining.
func (c *PlanContext) Targets() []PursuitTarget {
	var targets []PursuitTarget

	for _, pursuit := range c.Pursuits {
		if remaining := pursuit.RemainingMinutes(); remaining > 0 {
			targets = append(targets, PursuitTarget{
				PursuitID:        pursuit.ID,
				Name:             pursuit.Name,
				RemainingMinutes: remaining,
			})
		}
	}

	return targets
}

// DateLayout is the format of target dates.
const DateLayout = "2006-01-02"

const (
	defaultWindowStartHour = 7
	defaultWindowEndHour   = 22
)

// DefaultWindow is 07:00-22:00 on the target date in the given location.
func DefaultWindow(targetDate string, loc *time.Location) (TimeRange, error) {
	if loc == nil {
		loc = time.UTC
	}

	day, err := time.ParseInLocation(DateLayout, targetDate, loc)
	if err != nil {
		return TimeRange{}, fmt.Errorf("invalid target date %q: %w", targetDate, err)
	}

	return TimeRange{
		Start: day.Add(defaultWindowStartHour * time.Hour),
		End:   day.Add(defaultWindowEndHour * time.Hour),
	}, nil
}
