package workflow

import (
	"fmt"
	"slices"

	"github.com/dukex/agendaflow/pkg/models"
)

// transitions is the complete set of legal moves. Terminal statuses have no entry.
// Pending and iterating may fail directly when their generating write is lost.
var transitions = map[models.ExecutionStatus][]models.ExecutionStatus{
	models.ExecutionStatusPending: {
		models.ExecutionStatusGenerating,
		models.ExecutionStatusFailed,
	},
	models.ExecutionStatusGenerating: {
		models.ExecutionStatusAwaitingUser,
		models.ExecutionStatusFailed,
	},
	models.ExecutionStatusAwaitingUser: {
		models.ExecutionStatusCompleted,
		models.ExecutionStatusIterating,
		models.ExecutionStatusRejected,
		models.ExecutionStatusCancelled,
	},
	models.ExecutionStatusIterating: {
		models.ExecutionStatusGenerating,
		models.ExecutionStatusFailed,
	},
	models.ExecutionStatusFailed: {
		models.ExecutionStatusIterating,
		models.ExecutionStatusRejected,
	},
}

// CanTransition reports whether the state machine allows moving from one status to another.
func CanTransition(from, to models.ExecutionStatus) bool {
	return slices.Contains(transitions[from], to)
}

// Transition returns ErrStateConflict when the move is illegal.
func Transition(from, to models.ExecutionStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: cannot move from %s to %s", ErrStateConflict, from, to)
	}

	return nil
}
