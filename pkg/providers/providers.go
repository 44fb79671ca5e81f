// Package providers defines the read-only context collaborators of the engine.
//
// Every provider must be safe to call for users that never connected the
// integration: it returns a nil context and a nil error in that case.
package providers

import (
	"context"

	"github.com/dukex/agendaflow/pkg/models"
)

type CalendarProvider interface {
	CalendarContext(ctx context.Context, userID string, window models.TimeRange) (*models.CalendarContext, error)
}

type WellnessProvider interface {
	WellnessContext(ctx context.Context, userID string) (*models.WellnessContext, error)
}

type FinancialProvider interface {
	FinancialContext(ctx context.Context, userID string) (*models.FinancialContext, error)
}

// PursuitProvider returns the user's active pursuits with progress for the week
// containing the target date.
type PursuitProvider interface {
	Pursuits(ctx context.Context, userID string, targetDate string) ([]models.Pursuit, error)
}

// Set bundles the providers the engine gathers from. Any of them may be nil.
type Set struct {
	Calendar  CalendarProvider
	Wellness  WellnessProvider
	Financial FinancialProvider
	Pursuits  PursuitProvider
}
