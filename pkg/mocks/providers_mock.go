package mocks

import (
	"context"

	"github.com/dukex/agendaflow/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockCalendarProvider is a mock implementation of providers.CalendarProvider interface.
type MockCalendarProvider struct {
	mock.Mock
}

func (m *MockCalendarProvider) CalendarContext(ctx context.Context, userID string, window models.TimeRange) (*models.CalendarContext, error) {
	args := m.Called(ctx, userID, window)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.CalendarContext), args.Error(1)
}

// MockWellnessProvider is a mock implementation of providers.WellnessProvider interface.
type MockWellnessProvider struct {
	mock.Mock
}

func (m *MockWellnessProvider) WellnessContext(ctx context.Context, userID string) (*models.WellnessContext, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WellnessContext), args.Error(1)
}

// MockFinancialProvider is a mock implementation of providers.FinancialProvider interface.
type MockFinancialProvider struct {
	mock.Mock
}

func (m *MockFinancialProvider) FinancialContext(ctx context.Context, userID string) (*models.FinancialContext, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.FinancialContext), args.Error(1)
}

// MockPursuitProvider is a mock implementation of providers.PursuitProvider interface.
type MockPursuitProvider struct {
	mock.Mock
}

func (m *MockPursuitProvider) Pursuits(ctx context.Context, userID string, targetDate string) ([]models.Pursuit, error) {
	args := m.Called(ctx, userID, targetDate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]models.Pursuit), args.Error(1)
}
