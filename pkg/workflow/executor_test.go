package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/agendaflow/pkg/events"
	"github.com/dukex/agendaflow/pkg/llm"
	"github.com/dukex/agendaflow/pkg/locker"
	"github.com/dukex/agendaflow/pkg/mocks"
	"github.com/dukex/agendaflow/pkg/models"
	"github.com/dukex/agendaflow/pkg/otelhelper"
	"github.com/dukex/agendaflow/pkg/persistence"
	"github.com/dukex/agendaflow/pkg/persistence/file"
	"github.com/dukex/agendaflow/pkg/providers"
	"github.com/dukex/agendaflow/pkg/rubric"
	"github.com/dukex/agendaflow/pkg/synthesis"
	"github.com/dukex/agendaflow/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

const (
	userID     = "user-1"
	targetDate = "2026-03-10"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 10, hour, minute, 0, 0, time.UTC)
}

type synthesizerFunc func(ctx context.Context, pc *models.PlanContext, prior *models.AgendaProposal, feedback string) (*models.AgendaProposal, error)

func (f synthesizerFunc) Synthesize(ctx context.Context, pc *models.PlanContext, prior *models.AgendaProposal, feedback string) (*models.AgendaProposal, error) {
	return f(ctx, pc, prior, feedback)
}

// staticPlan answers every synthesis with the same items.
func staticPlan(items ...models.AgendaItem) synthesizerFunc {
	return func(_ context.Context, pc *models.PlanContext, _ *models.AgendaProposal, _ string) (*models.AgendaProposal, error) {
		return &models.AgendaProposal{
			Date:        pc.TargetDate,
			Summary:     "plan",
			Items:       append([]models.AgendaItem{}, items...),
			Commitments: pc.Calendar.Commitments(),
			Targets:     pc.Targets(),
		}, nil
	}
}

func item(title string, start, end time.Time) models.AgendaItem {
	return models.AgendaItem{
		Category:  models.CategoryWork,
		Title:     title,
		Start:     start,
		End:       end,
		Rationale: "because",
	}
}

func noOverlapRubric() *models.WorkflowRubric {
	return &models.WorkflowRubric{
		Name:       "no overlapping items",
		Category:   "structure",
		Constraint: models.ConstraintHard,
		Weight:     2,
		Active:     true,
		Rule: models.ValidationRule{
			Kind:       models.RuleKindStructural,
			Structural: &models.StructuralRule{Check: models.CheckNoOverlap},
		},
	}
}

type harness struct {
	executor *workflow.Executor
	store    *file.Persistence
	bus      *mocks.MockEventBus
	workflow *models.Workflow
}

type option func(*workflow.Dependencies, *workflow.Config)

func withLocker(l locker.Locker) option {
	return func(deps *workflow.Dependencies, _ *workflow.Config) { deps.Locker = l }
}

func withMaxIterations(n int) option {
	return func(_ *workflow.Dependencies, config *workflow.Config) { config.MaxIterations = n }
}

func withTracer(recorder *tracetest.SpanRecorder) option {
	return func(deps *workflow.Dependencies, _ *workflow.Config) {
		deps.Tracer = sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("test")
	}
}

func withExecutions(wrap func(persistence.ExecutionRepository) persistence.ExecutionRepository) option {
	return func(deps *workflow.Dependencies, _ *workflow.Config) { deps.Executions = wrap(deps.Executions) }
}

// pausedExecutions holds the first GetByID after pause until release is closed.
type pausedExecutions struct {
	persistence.ExecutionRepository
	armed   atomic.Bool
	loaded  chan struct{}
	release chan struct{}
}

func newPausedExecutions() *pausedExecutions {
	return &pausedExecutions{loaded: make(chan struct{}), release: make(chan struct{})}
}

func (p *pausedExecutions) wrap(repo persistence.ExecutionRepository) persistence.ExecutionRepository {
	p.ExecutionRepository = repo

	return p
}

func (p *pausedExecutions) pause() { p.armed.Store(true) }

func (p *pausedExecutions) GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	execution, err := p.ExecutionRepository.GetByID(ctx, id)

	if p.armed.CompareAndSwap(true, false) {
		close(p.loaded)
		<-p.release
	}

	return execution, err
}

// failingExecutions fails the next n writes into each listed status.
type failingExecutions struct {
	persistence.ExecutionRepository
	mu       sync.Mutex
	failures map[models.ExecutionStatus]int
}

func (f *failingExecutions) wrap(repo persistence.ExecutionRepository) persistence.ExecutionRepository {
	f.ExecutionRepository = repo

	return f
}

func (f *failingExecutions) Update(ctx context.Context, execution *models.WorkflowExecution, expected models.ExecutionStatus) error {
	f.mu.Lock()
	if f.failures[execution.Status] > 0 {
		f.failures[execution.Status]--
		f.mu.Unlock()

		return errors.New("disk full")
	}
	f.mu.Unlock()

	return f.ExecutionRepository.Update(ctx, execution, expected)
}

func newHarness(
	t *testing.T,
	synthesizer workflow.Synthesizer,
	set providers.Set,
	rubrics []*models.WorkflowRubric,
	opts ...option,
) *harness {
	t.Helper()

	ctx := t.Context()
	store := file.NewPersistence(t.TempDir())

	wf := &models.Workflow{
		ID:           "wf-1",
		UserID:       userID,
		Slug:         "daily",
		Name:         "Daily plan",
		Type:         "daily_plan",
		Integrations: []models.Integration{models.IntegrationCalendar},
	}
	require.NoError(t, store.WorkflowRepository().Save(ctx, wf))

	for i, r := range rubrics {
		r.ID = fmt.Sprintf("rubric-%d", i)
		r.WorkflowID = wf.ID
		r.UserID = userID
		r.CreatedAt = time.Unix(int64(i), 0).UTC()
		require.NoError(t, store.RubricRepository().Save(ctx, r))
	}

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	logger := slog.New(slog.DiscardHandler)
	deps := workflow.Dependencies{
		Workflows:   store.WorkflowRepository(),
		Rubrics:     store.RubricRepository(),
		Executions:  store.ExecutionRepository(),
		Gatherer:    workflow.NewGatherer(set, logger),
		Synthesizer: synthesizer,
		Events:      bus,
	}
	config := workflow.Config{}

	for _, opt := range opts {
		opt(&deps, &config)
	}

	executor, err := workflow.NewExecutor(deps, config, logger)
	require.NoError(t, err)

	return &harness{executor: executor, store: store, bus: bus, workflow: wf}
}

func (h *harness) execute(t *testing.T) *workflow.Outcome {
	t.Helper()

	outcome, err := h.executor.Execute(t.Context(), workflow.ExecuteRequest{
		UserID:     userID,
		WorkflowID: h.workflow.ID,
		TargetDate: targetDate,
	})
	require.NoError(t, err)

	return outcome
}

func (h *harness) resume(t *testing.T, id string, action workflow.Action, feedback string) (*workflow.Outcome, error) {
	t.Helper()

	return h.executor.Resume(t.Context(), workflow.ResumeRequest{
		ExecutionID: id,
		UserID:      userID,
		Action:      action,
		Feedback:    feedback,
	})
}

func (h *harness) stored(t *testing.T, id string) *models.WorkflowExecution {
	t.Helper()

	execution, err := h.store.ExecutionRepository().GetByID(t.Context(), id)
	require.NoError(t, err)

	return execution
}

func TestNewExecutor_RequiresDependencies(t *testing.T) {
	_, err := workflow.NewExecutor(workflow.Dependencies{}, workflow.Config{}, slog.New(slog.DiscardHandler))
	assert.Error(t, err)
}

func TestExecute_ReachesAwaitingUser(t *testing.T) {
	h := newHarness(t, staticPlan(item("Deep work", at(8, 0), at(10, 0))), providers.Set{}, []*models.WorkflowRubric{noOverlapRubric()})

	outcome := h.execute(t)

	assert.Equal(t, models.ExecutionStatusAwaitingUser, outcome.Execution.Status)
	require.NotNil(t, outcome.Proposal)
	assert.InDelta(t, 1.0, outcome.Proposal.Score, 1e-9)
	assert.True(t, outcome.Proposal.Valid)
	assert.Equal(t, 0, outcome.Execution.Iteration)

	stored := h.stored(t, outcome.Execution.ID)
	assert.Equal(t, models.ExecutionStatusAwaitingUser, stored.Status)
	assert.Len(t, stored.Results, 1)
	require.NotNil(t, stored.Context)
	assert.Equal(t, at(7, 0), stored.Context.Window.Start)

	assert.Equal(t, []events.EventType{events.ExecutionStartedEvent, events.ExecutionProposedEvent}, h.bus.PublishedTypes())
}

func TestExecute_BySlug(t *testing.T) {
	h := newHarness(t, staticPlan(), providers.Set{}, nil)

	outcome, err := h.executor.Execute(t.Context(), workflow.ExecuteRequest{
		UserID:       userID,
		WorkflowSlug: "daily",
		TargetDate:   targetDate,
	})
	require.NoError(t, err)
	assert.Equal(t, h.workflow.ID, outcome.Execution.WorkflowID)
}

func TestExecute_InvalidRequests(t *testing.T) {
	h := newHarness(t, staticPlan(), providers.Set{}, nil)

	tests := []struct {
		name string
		req  workflow.ExecuteRequest
		want func(error) bool
	}{
		{"missing user", workflow.ExecuteRequest{WorkflowID: "wf-1", TargetDate: targetDate}, workflow.IsInvalidRequest},
		{"missing workflow", workflow.ExecuteRequest{UserID: userID, TargetDate: targetDate}, workflow.IsInvalidRequest},
		{"bad date", workflow.ExecuteRequest{UserID: userID, WorkflowID: "wf-1", TargetDate: "10/03/2026"}, workflow.IsInvalidRequest},
		{"unknown workflow", workflow.ExecuteRequest{UserID: userID, WorkflowID: "nope", TargetDate: targetDate}, workflow.IsNotFound},
		{"foreign workflow", workflow.ExecuteRequest{UserID: "user-2", WorkflowID: "wf-1", TargetDate: targetDate}, workflow.IsNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, err := h.executor.Execute(t.Context(), tt.req)
			require.Error(t, err)
			assert.Nil(t, outcome)
			assert.True(t, tt.want(err), "unexpected error: %v", err)
		})
	}
}

func TestExecute_NoRubricsScoresZeroAndApproves(t *testing.T) {
	h := newHarness(t, staticPlan(item("Deep work", at(8, 0), at(10, 0))), providers.Set{}, nil)

	outcome := h.execute(t)
	assert.Zero(t, outcome.Proposal.Score)
	assert.True(t, outcome.Proposal.Valid)
	assert.Empty(t, outcome.Execution.Results)

	approved, err := h.resume(t, outcome.Execution.ID, workflow.ActionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, approved.Execution.Status)
}

func TestExecute_SynthesisFailureStoresFailed(t *testing.T) {
	cause := &synthesis.SynthesisError{Attempts: 2, Err: errors.New("model unavailable")}
	failing := synthesizerFunc(func(context.Context, *models.PlanContext, *models.AgendaProposal, string) (*models.AgendaProposal, error) {
		return nil, cause
	})

	h := newHarness(t, failing, providers.Set{}, nil)

	outcome, err := h.executor.Execute(t.Context(), workflow.ExecuteRequest{
		UserID:     userID,
		WorkflowID: h.workflow.ID,
		TargetDate: targetDate,
	})
	require.Error(t, err)
	assert.True(t, workflow.IsSynthesisFailure(err))
	assert.ErrorIs(t, err, synthesis.ErrSynthesisFailed)

	require.NotNil(t, outcome)
	assert.Equal(t, models.ExecutionStatusFailed, outcome.Execution.Status)

	stored := h.stored(t, outcome.Execution.ID)
	assert.Equal(t, models.ExecutionStatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "model unavailable")
	assert.Contains(t, h.bus.PublishedTypes(), events.ExecutionFailedEvent)

	rejected, err := h.resume(t, outcome.Execution.ID, workflow.ActionReject, "give up")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRejected, rejected.Execution.Status)
}

func TestExecute_LostWriteStoresFailed(t *testing.T) {
	tests := []struct {
		name     string
		failures map[models.ExecutionStatus]int
		stored   models.ExecutionStatus
	}{
		{
			name:     "candidate write",
			failures: map[models.ExecutionStatus]int{models.ExecutionStatusAwaitingUser: 1},
			stored:   models.ExecutionStatusFailed,
		},
		{
			name:     "generating write",
			failures: map[models.ExecutionStatus]int{models.ExecutionStatusGenerating: 1},
			stored:   models.ExecutionStatusFailed,
		},
		{
			name: "failed write retried",
			failures: map[models.ExecutionStatus]int{
				models.ExecutionStatusAwaitingUser: 1,
				models.ExecutionStatusFailed:       1,
			},
			stored: models.ExecutionStatusFailed,
		},
		{
			name: "store unavailable",
			failures: map[models.ExecutionStatus]int{
				models.ExecutionStatusGenerating: 1,
				models.ExecutionStatusFailed:     2,
			},
			stored: models.ExecutionStatusPending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failing := &failingExecutions{failures: tt.failures}
			h := newHarness(t, staticPlan(item("Deep work", at(8, 0), at(10, 0))), providers.Set{}, nil, withExecutions(failing.wrap))

			outcome, err := h.executor.Execute(t.Context(), workflow.ExecuteRequest{
				UserID:     userID,
				WorkflowID: h.workflow.ID,
				TargetDate: targetDate,
			})
			require.Error(t, err)
			assert.ErrorContains(t, err, "disk full")
			assert.False(t, workflow.IsStateConflict(err))

			require.NotNil(t, outcome)
			assert.Equal(t, tt.stored, outcome.Execution.Status)

			stored := h.stored(t, outcome.Execution.ID)
			assert.Equal(t, tt.stored, stored.Status)
			assert.Nil(t, stored.Proposal)

			if tt.stored != models.ExecutionStatusFailed {
				return
			}

			assert.Contains(t, stored.ErrorMessage, "disk full")
			assert.Contains(t, h.bus.PublishedTypes(), events.ExecutionFailedEvent)

			iterated, err := h.resume(t, outcome.Execution.ID, workflow.ActionIterate, "try again")
			require.NoError(t, err)
			assert.Equal(t, models.ExecutionStatusAwaitingUser, iterated.Execution.Status)
			assert.Equal(t, models.ExecutionStatusAwaitingUser, h.stored(t, outcome.Execution.ID).Status)
		})
	}
}

func TestResume_LostWriteDuringIterateStoresFailed(t *testing.T) {
	failing := &failingExecutions{failures: map[models.ExecutionStatus]int{}}
	h := newHarness(t, staticPlan(item("Deep work", at(8, 0), at(10, 0))), providers.Set{}, nil, withExecutions(failing.wrap))
	outcome := h.execute(t)

	failing.mu.Lock()
	failing.failures[models.ExecutionStatusGenerating] = 1
	failing.mu.Unlock()

	iterated, err := h.resume(t, outcome.Execution.ID, workflow.ActionIterate, "start later")
	require.Error(t, err)
	require.NotNil(t, iterated)

	stored := h.stored(t, outcome.Execution.ID)
	assert.Equal(t, models.ExecutionStatusFailed, stored.Status)
	assert.Equal(t, 1, stored.Iteration)
	require.NotNil(t, stored.Proposal)
	assert.Equal(t, outcome.Proposal.Items, stored.Proposal.Items)

	rejected, err := h.resume(t, outcome.Execution.ID, workflow.ActionReject, "")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRejected, rejected.Execution.Status)
}

func TestExecute_UnknownScheduleTimezone(t *testing.T) {
	h := newHarness(t, staticPlan(), providers.Set{}, nil)

	h.workflow.Schedule = &models.Schedule{Cron: "0 6 * * *", Timezone: "Mars/Olympus_Mons"}
	require.NoError(t, h.store.WorkflowRepository().Save(t.Context(), h.workflow))

	outcome, err := h.executor.Execute(t.Context(), workflow.ExecuteRequest{
		UserID:     userID,
		WorkflowID: h.workflow.ID,
		TargetDate: targetDate,
	})
	require.Error(t, err)
	assert.Nil(t, outcome)
	assert.True(t, workflow.IsWorkflowMisconfigured(err))
	assert.False(t, workflow.IsSynthesisFailure(err))

	executions, err := h.executor.ListByWorkflow(t.Context(), h.workflow.ID, userID)
	require.NoError(t, err)
	assert.Empty(t, executions)
}

func TestResume_IterateWithUnknownTimezoneIsMisconfigured(t *testing.T) {
	h := newHarness(t, staticPlan(), providers.Set{}, nil)
	outcome := h.execute(t)

	h.workflow.Schedule = &models.Schedule{Cron: "0 6 * * *", Timezone: "Mars/Olympus_Mons"}
	require.NoError(t, h.store.WorkflowRepository().Save(t.Context(), h.workflow))

	failed, err := h.resume(t, outcome.Execution.ID, workflow.ActionIterate, "again")
	require.Error(t, err)
	assert.True(t, workflow.IsWorkflowMisconfigured(err))
	assert.False(t, workflow.IsSynthesisFailure(err))

	require.NotNil(t, failed)
	assert.Equal(t, models.ExecutionStatusFailed, failed.Execution.Status)
	assert.Contains(t, h.stored(t, outcome.Execution.ID).ErrorMessage, "unknown timezone")
}

func TestSpansCarryStatusAndScore(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	h := newHarness(t, staticPlan(item("Deep work", at(8, 0), at(10, 0))), providers.Set{}, []*models.WorkflowRubric{noOverlapRubric()}, withTracer(recorder))

	outcome := h.execute(t)

	_, err := h.resume(t, outcome.Execution.ID, workflow.ActionApprove, "")
	require.NoError(t, err)

	spans := map[string][]attribute.KeyValue{}
	for _, span := range recorder.Ended() {
		spans[span.Name()] = span.Attributes()
	}

	assert.Contains(t, spans["workflow.synthesize"], attribute.Float64(otelhelper.ScoreKey, 1))
	assert.Contains(t, spans["workflow.execute"], attribute.String(otelhelper.StatusKey, string(models.ExecutionStatusAwaitingUser)))
	assert.Contains(t, spans["workflow.resume"], attribute.String(otelhelper.StatusKey, string(models.ExecutionStatusCompleted)))
}

func TestExecute_IsDeterministicForFixedInputs(t *testing.T) {
	rubrics, err := rubric.DefaultRubrics("daily_plan")
	require.NoError(t, err)

	h := newHarness(t, staticPlan(item("Deep work", at(8, 0), at(10, 0)), item("Gym", at(18, 0), at(19, 0))), providers.Set{}, rubrics)

	first := h.execute(t)
	second := h.execute(t)

	assert.Equal(t, first.Proposal.Score, second.Proposal.Score)
	assert.Equal(t, first.Proposal.Valid, second.Proposal.Valid)
	assert.Equal(t, first.Execution.Results, second.Execution.Results)
}

func TestResume_ApproveKeepsProposal(t *testing.T) {
	h := newHarness(t, staticPlan(item("Deep work", at(8, 0), at(10, 0))), providers.Set{}, []*models.WorkflowRubric{noOverlapRubric()})

	outcome := h.execute(t)

	approved, err := h.resume(t, outcome.Execution.ID, workflow.ActionApprove, "looks good")
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, approved.Execution.Status)
	assert.NotNil(t, approved.Execution.CompletedAt)
	assert.Equal(t, outcome.Proposal.Items, approved.Proposal.Items)
	assert.Equal(t, outcome.Proposal.Score, approved.Proposal.Score)
	assert.Equal(t, "looks good", approved.Execution.LastUserFeedback())
	assert.Contains(t, h.bus.PublishedTypes(), events.ExecutionCompletedEvent)

	_, err = h.resume(t, outcome.Execution.ID, workflow.ActionApprove, "")
	assert.True(t, workflow.IsStateConflict(err))
}

func TestResume_ApproveBlockedByHardFailure(t *testing.T) {
	overlapping := staticPlan(item("A", at(8, 0), at(10, 0)), item("B", at(9, 0), at(11, 0)))
	h := newHarness(t, overlapping, providers.Set{}, []*models.WorkflowRubric{noOverlapRubric()})

	outcome := h.execute(t)
	assert.False(t, outcome.Proposal.Valid)

	blocked, err := h.resume(t, outcome.Execution.ID, workflow.ActionApprove, "")
	require.Error(t, err)
	assert.True(t, workflow.IsHardConstraintBlocked(err))

	blocking := workflow.BlockingResults(err)
	require.Len(t, blocking, 1)
	assert.Equal(t, "no overlapping items", blocking[0].RubricName)

	require.NotNil(t, blocked)
	assert.Equal(t, models.ExecutionStatusAwaitingUser, blocked.Execution.Status)
	assert.Equal(t, models.ExecutionStatusAwaitingUser, h.stored(t, outcome.Execution.ID).Status)
}

func TestResume_RejectIsTerminal(t *testing.T) {
	h := newHarness(t, staticPlan(item("Deep work", at(8, 0), at(10, 0))), providers.Set{}, nil)

	outcome := h.execute(t)

	rejected, err := h.resume(t, outcome.Execution.ID, workflow.ActionReject, "not today")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRejected, rejected.Execution.Status)

	for _, action := range []workflow.Action{workflow.ActionApprove, workflow.ActionReject, workflow.ActionIterate} {
		_, err := h.resume(t, outcome.Execution.ID, action, "")
		assert.True(t, workflow.IsStateConflict(err), "action %s: %v", action, err)
	}

	_, err = h.executor.Cancel(t.Context(), outcome.Execution.ID, userID)
	assert.True(t, workflow.IsStateConflict(err))
}

func TestResume_IterateRevisesWithFeedback(t *testing.T) {
	var (
		mu        sync.Mutex
		feedbacks []string
		priors    []*models.AgendaProposal
	)

	recording := synthesizerFunc(func(ctx context.Context, pc *models.PlanContext, prior *models.AgendaProposal, feedback string) (*models.AgendaProposal, error) {
		mu.Lock()
		feedbacks = append(feedbacks, feedback)
		priors = append(priors, prior)
		mu.Unlock()

		return staticPlan(item("Deep work", at(8, 0), at(10, 0)))(ctx, pc, prior, feedback)
	})

	h := newHarness(t, recording, providers.Set{}, nil)
	outcome := h.execute(t)

	iterated, err := h.resume(t, outcome.Execution.ID, workflow.ActionIterate, "start later")
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusAwaitingUser, iterated.Execution.Status)
	assert.Equal(t, 1, iterated.Execution.Iteration)
	require.Len(t, iterated.Execution.Feedback, 1)
	assert.Equal(t, "start later", iterated.Execution.Feedback[0].Text)
	assert.Equal(t, models.FeedbackRoleUser, iterated.Execution.Feedback[0].Role)

	assert.Equal(t, []string{"", "start later"}, feedbacks)
	assert.Nil(t, priors[0])
	require.NotNil(t, priors[1])
	assert.Equal(t, outcome.Proposal.Items, priors[1].Items)

	assert.Equal(t, []events.EventType{
		events.ExecutionStartedEvent,
		events.ExecutionProposedEvent,
		events.ExecutionIteratedEvent,
		events.ExecutionProposedEvent,
	}, h.bus.PublishedTypes())
}

func TestResume_IterationLimitRejects(t *testing.T) {
	h := newHarness(t, staticPlan(item("Deep work", at(8, 0), at(10, 0))), providers.Set{}, nil, withMaxIterations(2))

	outcome := h.execute(t)
	id := outcome.Execution.ID

	for i := 1; i <= 2; i++ {
		iterated, err := h.resume(t, id, workflow.ActionIterate, fmt.Sprintf("round %d", i))
		require.NoError(t, err)
		assert.Equal(t, i, iterated.Execution.Iteration)
	}

	limited, err := h.resume(t, id, workflow.ActionIterate, "once more")
	require.Error(t, err)
	assert.True(t, workflow.IsIterationLimitExceeded(err))

	require.NotNil(t, limited)
	assert.Equal(t, models.ExecutionStatusRejected, limited.Execution.Status)

	stored := h.stored(t, id)
	assert.Equal(t, models.ExecutionStatusRejected, stored.Status)
	assert.Equal(t, 2, stored.Iteration)
	assert.Len(t, stored.Feedback, 2)
	assert.NotEmpty(t, stored.ErrorMessage)
}

func TestResume_IterateAfterFailure(t *testing.T) {
	var calls int

	flaky := synthesizerFunc(func(ctx context.Context, pc *models.PlanContext, prior *models.AgendaProposal, feedback string) (*models.AgendaProposal, error) {
		calls++
		if calls == 1 {
			return nil, &synthesis.SynthesisError{Attempts: 2, Err: errors.New("timeout")}
		}

		return staticPlan(item("Deep work", at(8, 0), at(10, 0)))(ctx, pc, prior, feedback)
	})

	h := newHarness(t, flaky, providers.Set{}, nil)

	outcome, err := h.executor.Execute(t.Context(), workflow.ExecuteRequest{UserID: userID, WorkflowID: h.workflow.ID, TargetDate: targetDate})
	require.True(t, workflow.IsSynthesisFailure(err))

	iterated, err := h.resume(t, outcome.Execution.ID, workflow.ActionIterate, "try again")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusAwaitingUser, iterated.Execution.Status)
	assert.Empty(t, iterated.Execution.ErrorMessage)
}

func TestResume_ConcurrentDecisionsOneWins(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts []option
	}{
		{name: "compare and swap"},
		{name: "locker", opts: []option{withLocker(locker.NewLocal())}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, staticPlan(item("Deep work", at(8, 0), at(10, 0))), providers.Set{}, nil, tc.opts...)
			outcome := h.execute(t)

			actions := []workflow.Action{workflow.ActionApprove, workflow.ActionReject}
			errs := make([]error, len(actions))

			var wg sync.WaitGroup
			for i, action := range actions {
				wg.Add(1)

				go func() {
					defer wg.Done()

					_, errs[i] = h.executor.Resume(context.Background(), workflow.ResumeRequest{
						ExecutionID: outcome.Execution.ID,
						UserID:      userID,
						Action:      action,
					})
				}()
			}

			wg.Wait()

			var succeeded, conflicted int

			for _, err := range errs {
				switch {
				case err == nil:
					succeeded++
				case workflow.IsStateConflict(err):
					conflicted++
				default:
					t.Fatalf("unexpected error: %v", err)
				}
			}

			assert.Equal(t, 1, succeeded)
			assert.Equal(t, 1, conflicted)
			assert.True(t, h.stored(t, outcome.Execution.ID).Status.IsTerminal())
		})
	}
}

func TestResume_StaleDecisionLosesToCompletedIterate(t *testing.T) {
	paused := newPausedExecutions()
	h := newHarness(t, staticPlan(item("Deep work", at(8, 0), at(10, 0))), providers.Set{}, nil, withExecutions(paused.wrap))
	outcome := h.execute(t)
	id := outcome.Execution.ID

	paused.pause()

	var staleErr error

	done := make(chan struct{})

	go func() {
		defer close(done)

		_, staleErr = h.executor.Resume(context.Background(), workflow.ResumeRequest{
			ExecutionID: id,
			UserID:      userID,
			Action:      workflow.ActionApprove,
		})
	}()

	<-paused.loaded

	iterated, err := h.resume(t, id, workflow.ActionIterate, "more breaks")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusAwaitingUser, iterated.Execution.Status)

	close(paused.release)
	<-done

	assert.True(t, workflow.IsStateConflict(staleErr), "unexpected error: %v", staleErr)

	stored := h.stored(t, id)
	assert.Equal(t, models.ExecutionStatusAwaitingUser, stored.Status)
	assert.Equal(t, 1, stored.Iteration)
	assert.Equal(t, "more breaks", stored.LastUserFeedback())
	assert.Nil(t, stored.CompletedAt)
}

func TestResume_LockHeldIsConflict(t *testing.T) {
	l := locker.NewLocal()
	h := newHarness(t, staticPlan(), providers.Set{}, nil, withLocker(l))
	outcome := h.execute(t)

	release, err := l.Acquire(t.Context(), "execution:"+outcome.Execution.ID)
	require.NoError(t, err)
	defer release()

	_, err = h.resume(t, outcome.Execution.ID, workflow.ActionApprove, "")
	assert.True(t, workflow.IsStateConflict(err))
}

func TestResume_OwnershipAndValidation(t *testing.T) {
	h := newHarness(t, staticPlan(), providers.Set{}, nil)
	outcome := h.execute(t)

	_, err := h.executor.Resume(t.Context(), workflow.ResumeRequest{ExecutionID: outcome.Execution.ID, UserID: "user-2", Action: workflow.ActionApprove})
	assert.True(t, workflow.IsNotFound(err))

	_, err = h.executor.Resume(t.Context(), workflow.ResumeRequest{ExecutionID: "missing", UserID: userID, Action: workflow.ActionApprove})
	assert.True(t, workflow.IsNotFound(err))

	_, err = h.executor.Resume(t.Context(), workflow.ResumeRequest{ExecutionID: outcome.Execution.ID, UserID: userID, Action: "snooze"})
	assert.True(t, workflow.IsInvalidRequest(err))
}

func TestCancel(t *testing.T) {
	h := newHarness(t, staticPlan(), providers.Set{}, nil)
	outcome := h.execute(t)

	_, err := h.executor.Cancel(t.Context(), outcome.Execution.ID, "user-2")
	assert.True(t, workflow.IsNotFound(err))

	cancelled, err := h.executor.Cancel(t.Context(), outcome.Execution.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, cancelled.Execution.Status)
	assert.Contains(t, h.bus.PublishedTypes(), events.ExecutionCancelledEvent)

	_, err = h.resume(t, outcome.Execution.ID, workflow.ActionApprove, "")
	assert.True(t, workflow.IsStateConflict(err))
}

func TestGetAndList(t *testing.T) {
	h := newHarness(t, staticPlan(), providers.Set{}, nil)
	first := h.execute(t)
	second := h.execute(t)

	got, err := h.executor.Get(t.Context(), first.Execution.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, first.Execution.ID, got.Execution.ID)

	_, err = h.executor.Get(t.Context(), first.Execution.ID, "user-2")
	assert.True(t, workflow.IsNotFound(err))

	list, err := h.executor.ListByWorkflow(t.Context(), h.workflow.ID, userID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.ElementsMatch(t, []string{first.Execution.ID, second.Execution.ID}, []string{list[0].ID, list[1].ID})

	_, err = h.executor.ListByWorkflow(t.Context(), h.workflow.ID, "user-2")
	assert.True(t, workflow.IsNotFound(err))
}

func TestPublishFailureDoesNotFailExecution(t *testing.T) {
	h := newHarness(t, staticPlan(), providers.Set{}, nil)
	h.bus.ExpectedCalls = nil
	h.bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))

	outcome := h.execute(t)
	assert.Equal(t, models.ExecutionStatusAwaitingUser, outcome.Execution.Status)
}

// The scenarios below run the real synthesizer against a scripted completer.

func synthesizerWith(t *testing.T, answer string) *synthesis.Synthesizer {
	t.Helper()

	completer := &mocks.MockCompleter{}
	completer.On("Complete", mock.Anything, mock.Anything).Return(&llm.CompletionResponse{Content: answer}, nil)

	s, err := synthesis.NewSynthesizer(completer, nil, synthesis.Config{}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	return s
}

func TestScenario_PursuitOnFreeCalendar(t *testing.T) {
	calendar := &mocks.MockCalendarProvider{}
	calendar.On("CalendarContext", mock.Anything, userID, mock.Anything).Return(&models.CalendarContext{}, nil)

	pursuits := &mocks.MockPursuitProvider{}
	pursuits.On("Pursuits", mock.Anything, userID, targetDate).Return([]models.Pursuit{
		{ID: "guitar", Name: "Guitar", Category: models.CategoryPersonal, WeeklyTargetHours: 5},
	}, nil)

	answer := `{"summary": "Practice in the evening", "items": [
		{"category": "personal", "title": "Guitar practice", "start": "19:00", "end": "20:00", "rationale": "weekly target", "pursuit_id": "guitar"}
	]}`

	rubrics, err := rubric.DefaultRubrics("daily_plan")
	require.NoError(t, err)

	h := newHarness(t, synthesizerWith(t, answer), providers.Set{Calendar: calendar, Pursuits: pursuits}, rubrics)

	outcome := h.execute(t)

	require.Len(t, outcome.Proposal.Items, 1)
	assert.Equal(t, "guitar", outcome.Proposal.Items[0].PursuitID)
	assert.True(t, outcome.Proposal.Valid)

	var found bool

	for _, result := range outcome.Execution.Results {
		if result.RubricName == "respects weekly target" {
			found = true

			assert.True(t, result.Passed, result.Explanation)
		}
	}

	assert.True(t, found)

	approved, err := h.resume(t, outcome.Execution.ID, workflow.ActionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, approved.Execution.Status)
}

func TestScenario_FixedCommitmentIsNotDoubleBooked(t *testing.T) {
	teamSync := models.TimeRange{Start: at(9, 0), End: at(10, 0), Title: "Team Sync"}

	calendar := &mocks.MockCalendarProvider{}
	calendar.On("CalendarContext", mock.Anything, userID, mock.Anything).Return(&models.CalendarContext{
		Events: []models.CalendarEvent{{Title: "Team Sync", Start: teamSync.Start, End: teamSync.End, Fixed: true}},
	}, nil)

	answer := `{"summary": "Work around the sync", "items": [
		{"category": "work", "title": "Deep work", "start": "07:30", "end": "09:00", "rationale": "fresh"},
		{"category": "work", "title": "Email", "start": "09:30", "end": "10:30", "rationale": "clashes"},
		{"category": "work", "title": "Review", "start": "10:00", "end": "11:00", "rationale": "after sync"}
	]}`

	rubrics, err := rubric.DefaultRubrics("*")
	require.NoError(t, err)

	h := newHarness(t, synthesizerWith(t, answer), providers.Set{Calendar: calendar}, rubrics)

	outcome := h.execute(t)

	for _, it := range outcome.Proposal.Items {
		assert.False(t, it.Range().Overlaps(teamSync), "%s overlaps Team Sync", it.Title)
	}

	assert.True(t, outcome.Proposal.Valid)
	assert.Empty(t, outcome.Proposal.HardFailures)
}
