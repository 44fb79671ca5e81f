package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	// ErrInvalidSchedule is returned when schedule validation fails
	ErrInvalidSchedule = errors.New("invalid schedule configuration")
)

// Schedule makes a workflow autonomous: the scheduler starts an execution for the
// workflow owner every time the cron expression fires.
type Schedule struct {
	// Cron uses the standard 5-field format (minute hour day month weekday)
	Cron string `json:"cron" validate:"required"`

	// Timezone is an IANA location name used both for the cron expression and for
	// deriving the target date. Empty means UTC.
	Timezone string `json:"timezone,omitempty"`

	Enabled bool `json:"enabled"`
}

// Location resolves the schedule timezone.
func (s *Schedule) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}

	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", ErrInvalidSchedule, s.Timezone)
	}

	return loc, nil
}

// Spec returns the expression understood by cron.Cron.AddFunc, carrying the timezone.
func (s *Schedule) Spec() string {
	if s.Timezone == "" {
		return s.Cron
	}

	return "CRON_TZ=" + s.Timezone + " " + s.Cron
}

// Next returns the next activation strictly after the reference time.
func (s *Schedule) Next(reference time.Time) (time.Time, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	schedule, err := parser.Parse(s.Cron)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
	}

	loc, err := s.Location()
	if err != nil {
		return time.Time{}, err
	}

	return schedule.Next(reference.In(loc)), nil
}

// Validate performs validation on the schedule fields.
func (s *Schedule) Validate() error {
	if s.Cron == "" {
		return ErrInvalidSchedule
	}

	_, err := s.Next(time.Now())

	return err
}
