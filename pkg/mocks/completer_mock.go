package mocks

import (
	"context"

	"github.com/dukex/agendaflow/pkg/llm"
	"github.com/stretchr/testify/mock"
)

// MockCompleter is a mock implementation of llm.Completer interface.
type MockCompleter struct {
	mock.Mock
}

func (m *MockCompleter) Complete(ctx context.Context, request llm.CompletionRequest) (*llm.CompletionResponse, error) {
	args := m.Called(ctx, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*llm.CompletionResponse), args.Error(1)
}
