package workflow

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dukex/agendaflow/pkg/models"
	"github.com/dukex/agendaflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	notFound := fmt.Errorf("execution x: %w", persistence.ErrExecutionNotFound)
	conflict := &persistence.ExecutionError{Op: "Update", ExecutionID: "x", Expected: string(models.ExecutionStatusGenerating), Err: persistence.ErrStatusConflict}
	boom := errors.New("disk full")

	assert.NoError(t, classify("Get", "x", nil))

	err := classify("Get", "x", notFound)
	assert.True(t, IsNotFound(err))
	assert.ErrorIs(t, err, persistence.ErrExecutionNotFound)

	err = classify("Update", "x", conflict)
	assert.True(t, IsStateConflict(err))
	assert.ErrorIs(t, err, persistence.ErrStatusConflict)

	err = classify("Update", "x", boom)
	assert.ErrorIs(t, err, boom)
	assert.False(t, IsNotFound(err))
	assert.False(t, IsStateConflict(err))
}

func TestExecutionError(t *testing.T) {
	blocking := []models.RubricResult{{RubricName: "no overlapping items", Constraint: models.ConstraintHard}}
	err := &ExecutionError{Op: "Approve", ExecutionID: "exec-1", Err: ErrHardConstraintBlocked, Message: "failing", Blocking: blocking}

	assert.Equal(t, "Approve execution exec-1: hard constraint blocked: failing", err.Error())
	assert.True(t, IsHardConstraintBlocked(err))
	assert.False(t, IsSynthesisFailure(err))
	assert.Equal(t, blocking, BlockingResults(fmt.Errorf("wrapped: %w", err)))
	assert.Nil(t, BlockingResults(errors.New("other")))

	bare := newError("Execute", "", ErrInvalidRequest, "")
	assert.Equal(t, "Execute execution -: invalid request", bare.Error())
	assert.True(t, IsInvalidRequest(bare))
	assert.Len(t, bare.Unwrap(), 1)
}
