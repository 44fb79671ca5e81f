// Package workflow runs agenda workflow executions: it gathers context, asks the
// synthesizer for a candidate plan, scores it with the rubric evaluator and drives
// the execution state machine through user review.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/agendaflow/pkg/eventbus"
	"github.com/dukex/agendaflow/pkg/events"
	"github.com/dukex/agendaflow/pkg/locker"
	"github.com/dukex/agendaflow/pkg/metrics"
	"github.com/dukex/agendaflow/pkg/models"
	"github.com/dukex/agendaflow/pkg/otelhelper"
	"github.com/dukex/agendaflow/pkg/persistence"
	"github.com/dukex/agendaflow/pkg/rubric"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxIterations is the number of revisions allowed before an execution is rejected.
const DefaultMaxIterations = 5

// Action is the user decision on a presented candidate.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionIterate Action = "iterate"
)

func (a Action) IsValid() bool {
	return a == ActionApprove || a == ActionReject || a == ActionIterate
}

// Synthesizer produces candidate plans. *synthesis.Synthesizer implements it.
type Synthesizer interface {
	Synthesize(ctx context.Context, pc *models.PlanContext, prior *models.AgendaProposal, feedback string) (*models.AgendaProposal, error)
}

// ExecuteRequest starts an execution. The workflow is referenced by ID or, when
// WorkflowID is empty, by the owner's slug.
type ExecuteRequest struct {
	UserID       string         `json:"user_id"       validate:"required"`
	WorkflowID   string         `json:"workflow_id"   validate:"required_without=WorkflowSlug"`
	WorkflowSlug string         `json:"workflow_slug" validate:"required_without=WorkflowID"`
	TargetDate   string         `json:"target_date"   validate:"required,datetime=2006-01-02"`
	InputData    map[string]any `json:"input_data,omitempty"`
}

type ResumeRequest struct {
	ExecutionID string `json:"execution_id" validate:"required"`
	UserID      string `json:"user_id"      validate:"required"`
	Action      Action `json:"action"       validate:"required,oneof=approve reject iterate"`
	Feedback    string `json:"feedback"`
}

// Outcome is what the caller presents: the persisted execution and its current candidate.
type Outcome struct {
	Execution *models.WorkflowExecution `json:"execution"`
	Proposal  *models.AgendaProposal    `json:"proposal,omitempty"`
}

func newOutcome(execution *models.WorkflowExecution) *Outcome {
	return &Outcome{Execution: execution, Proposal: execution.Proposal}
}

type Config struct {
	// MaxIterations bounds the iterate loop. Zero means DefaultMaxIterations.
	MaxIterations int
}

// Dependencies of the Executor. Events, Locker and Tracer are optional.
type Dependencies struct {
	Workflows   persistence.WorkflowRepository
	Rubrics     persistence.RubricRepository
	Executions  persistence.ExecutionRepository
	Gatherer    *Gatherer
	Synthesizer Synthesizer
	Events      eventbus.EventPublisher
	Locker      locker.Locker
	Tracer      trace.Tracer
}

// Executor is stateless across calls; everything it knows about an execution is
// read from and written to the execution repository, each write a compare-and-swap
// on the status and revision the executor read.
type Executor struct {
	deps          Dependencies
	maxIterations int
	logger        *slog.Logger
	now           func() time.Time
}

func NewExecutor(deps Dependencies, config Config, logger *slog.Logger) (*Executor, error) {
	switch {
	case deps.Workflows == nil, deps.Rubrics == nil, deps.Executions == nil:
		return nil, errors.New("workflow, rubric and execution repositories are required")
	case deps.Gatherer == nil:
		return nil, errors.New("context gatherer is required")
	case deps.Synthesizer == nil:
		return nil, errors.New("synthesizer is required")
	}

	if deps.Tracer == nil {
		deps.Tracer = otelhelper.NoopTracer()
	}

	maxIterations := config.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	return &Executor{
		deps:          deps,
		maxIterations: maxIterations,
		logger:        logger.With("module", "workflow_executor"),
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

// Execute creates an execution and runs it up to the first candidate. When
// synthesis fails the execution is stored as failed and returned together with an
// ErrSynthesisFailure error.
func (e *Executor) Execute(ctx context.Context, req ExecuteRequest) (*Outcome, error) {
	if err := validateExecuteRequest(req); err != nil {
		return nil, err
	}

	ctx, span := otelhelper.StartSpan(ctx, e.deps.Tracer, "workflow.execute",
		attribute.String(otelhelper.UserIDKey, req.UserID),
		attribute.String(otelhelper.TargetDateKey, req.TargetDate),
	)
	defer span.End()

	workflow, err := e.resolveWorkflow(ctx, req)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
		attribute.String(otelhelper.WorkflowTypeKey, workflow.Type),
	)

	if workflow.Schedule != nil {
		if _, err := workflow.Schedule.Location(); err != nil {
			err = &ExecutionError{Op: "Execute", Err: ErrWorkflowMisconfigured, Message: err.Error(), Cause: err}
			otelhelper.SetError(span, err)

			return nil, err
		}
	}

	rubrics, err := e.deps.Rubrics.GetByWorkflow(ctx, workflow.ID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to load rubrics for workflow %s: %w", workflow.ID, err)
	}

	execution := &models.WorkflowExecution{
		ID:         uuid.New().String(),
		WorkflowID: workflow.ID,
		UserID:     req.UserID,
		TargetDate: req.TargetDate,
		Status:     models.ExecutionStatusPending,
		InputData:  req.InputData,
		Feedback:   []models.FeedbackEntry{},
	}

	span.SetAttributes(attribute.String(otelhelper.ExecutionIDKey, execution.ID))

	if err := e.deps.Executions.Create(ctx, execution); err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to create execution: %w", err)
	}

	logger := e.logger.With("execution_id", execution.ID, "workflow_id", workflow.ID, "user_id", req.UserID)
	logger.InfoContext(ctx, "Execution created", "target_date", req.TargetDate)

	e.publish(ctx, events.ExecutionStarted{BaseEvent: events.NewBaseEvent(events.ExecutionStartedEvent, execution)})

	outcome, err := e.generate(ctx, logger, workflow, rubrics, execution, nil, "")
	if err != nil {
		otelhelper.SetError(span, err)
	}

	span.SetAttributes(attribute.String(otelhelper.StatusKey, string(execution.Status)))

	return outcome, err
}

// Resume applies the user's decision on the current candidate.
func (e *Executor) Resume(ctx context.Context, req ResumeRequest) (*Outcome, error) {
	if req.ExecutionID == "" || req.UserID == "" {
		return nil, newError("Resume", req.ExecutionID, ErrInvalidRequest, "execution ID and user ID are required")
	}

	if !req.Action.IsValid() {
		return nil, newError("Resume", req.ExecutionID, ErrInvalidRequest, fmt.Sprintf("unknown action %q", req.Action))
	}

	ctx, span := otelhelper.StartSpan(ctx, e.deps.Tracer, "workflow.resume",
		attribute.String(otelhelper.ExecutionIDKey, req.ExecutionID),
		attribute.String(otelhelper.ActionKey, string(req.Action)),
	)
	defer span.End()

	release, err := e.lock(ctx, "Resume", req.ExecutionID)
	if err != nil {
		return nil, err
	}
	defer release()

	execution, err := e.load(ctx, "Resume", req.ExecutionID, req.UserID)
	if err != nil {
		return nil, err
	}

	logger := e.logger.With("execution_id", execution.ID, "workflow_id", execution.WorkflowID, "action", req.Action)

	var outcome *Outcome

	switch req.Action {
	case ActionApprove:
		outcome, err = e.approve(ctx, logger, execution, req.Feedback)
	case ActionReject:
		outcome, err = e.reject(ctx, logger, execution, req.Feedback)
	case ActionIterate:
		outcome, err = e.iterate(ctx, logger, execution, req.Feedback)
	}

	if err != nil {
		otelhelper.SetError(span, err)
	}

	span.SetAttributes(attribute.String(otelhelper.StatusKey, string(execution.Status)))

	return outcome, err
}

// Cancel abandons an execution that is waiting for the user.
func (e *Executor) Cancel(ctx context.Context, executionID, userID string) (*Outcome, error) {
	release, err := e.lock(ctx, "Cancel", executionID)
	if err != nil {
		return nil, err
	}
	defer release()

	execution, err := e.load(ctx, "Cancel", executionID, userID)
	if err != nil {
		return nil, err
	}

	from := execution.Status
	if err := e.move(ctx, "Cancel", execution, models.ExecutionStatusCancelled); err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "Execution cancelled", "execution_id", executionID, "from", from)
	e.publish(ctx, events.ExecutionCancelled{BaseEvent: events.NewBaseEvent(events.ExecutionCancelledEvent, execution)})

	return newOutcome(execution), nil
}

// Get returns the execution if it belongs to the user.
func (e *Executor) Get(ctx context.Context, executionID, userID string) (*Outcome, error) {
	execution, err := e.load(ctx, "Get", executionID, userID)
	if err != nil {
		return nil, err
	}

	return newOutcome(execution), nil
}

// ListByWorkflow returns the executions of one of the user's workflows, newest first.
func (e *Executor) ListByWorkflow(ctx context.Context, workflowID, userID string) ([]*models.WorkflowExecution, error) {
	workflow, err := e.deps.Workflows.GetByID(ctx, workflowID)
	if err != nil {
		return nil, classify("List", "", err)
	}

	if workflow.UserID != userID {
		return nil, newError("List", "", ErrNotFound, "workflow "+workflowID)
	}

	executions, err := e.deps.Executions.ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, classify("List", "", err)
	}

	return executions, nil
}

func (e *Executor) approve(ctx context.Context, logger *slog.Logger, execution *models.WorkflowExecution, feedback string) (*Outcome, error) {
	if err := Transition(execution.Status, models.ExecutionStatusCompleted); err != nil {
		return nil, &ExecutionError{Op: "Approve", ExecutionID: execution.ID, Err: ErrStateConflict, Message: conflictMessage(execution.Status, "approved"), Cause: err}
	}

	if blocking := execution.HardFailures(); len(blocking) > 0 {
		names := make([]string, 0, len(blocking))
		for _, result := range blocking {
			names = append(names, result.RubricName)
		}

		logger.InfoContext(ctx, "Approval blocked by hard constraints", "rubrics", names)

		return newOutcome(execution), &ExecutionError{
			Op:          "Approve",
			ExecutionID: execution.ID,
			Err:         ErrHardConstraintBlocked,
			Message:     "failing hard rubrics: " + strings.Join(names, ", "),
			Blocking:    blocking,
		}
	}

	e.appendFeedback(execution, models.FeedbackRoleUser, feedback)

	completedAt := e.now()
	execution.CompletedAt = &completedAt

	if err := e.move(ctx, "Approve", execution, models.ExecutionStatusCompleted); err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Execution approved")

	var score float64
	if execution.Proposal != nil {
		score = execution.Proposal.Score
	}

	e.publish(ctx, events.ExecutionCompleted{
		BaseEvent: events.NewBaseEvent(events.ExecutionCompletedEvent, execution),
		Score:     score,
	})

	return newOutcome(execution), nil
}

func (e *Executor) reject(ctx context.Context, logger *slog.Logger, execution *models.WorkflowExecution, feedback string) (*Outcome, error) {
	if !CanTransition(execution.Status, models.ExecutionStatusRejected) {
		return nil, newError("Reject", execution.ID, ErrStateConflict, conflictMessage(execution.Status, "rejected"))
	}

	e.appendFeedback(execution, models.FeedbackRoleUser, feedback)

	completedAt := e.now()
	execution.CompletedAt = &completedAt

	if err := e.move(ctx, "Reject", execution, models.ExecutionStatusRejected); err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Execution rejected")
	e.publish(ctx, events.ExecutionRejected{
		BaseEvent: events.NewBaseEvent(events.ExecutionRejectedEvent, execution),
		Reason:    feedback,
	})

	return newOutcome(execution), nil
}

func (e *Executor) iterate(ctx context.Context, logger *slog.Logger, execution *models.WorkflowExecution, feedback string) (*Outcome, error) {
	if !CanTransition(execution.Status, models.ExecutionStatusIterating) {
		return nil, newError("Iterate", execution.ID, ErrStateConflict, conflictMessage(execution.Status, "iterated"))
	}

	if execution.Iteration >= e.maxIterations {
		message := fmt.Sprintf("iteration limit of %d reached", e.maxIterations)

		execution.ErrorMessage = message
		completedAt := e.now()
		execution.CompletedAt = &completedAt

		if err := e.move(ctx, "Iterate", execution, models.ExecutionStatusRejected); err != nil {
			return nil, err
		}

		logger.InfoContext(ctx, "Iteration limit reached, execution rejected", "iteration", execution.Iteration)
		e.publish(ctx, events.ExecutionRejected{
			BaseEvent: events.NewBaseEvent(events.ExecutionRejectedEvent, execution),
			Reason:    message,
		})

		return newOutcome(execution), newError("Iterate", execution.ID, ErrIterationLimitExceeded, message)
	}

	workflow, err := e.deps.Workflows.GetByID(ctx, execution.WorkflowID)
	if err != nil {
		return nil, classify("Iterate", execution.ID, err)
	}

	rubrics, err := e.deps.Rubrics.GetByWorkflow(ctx, workflow.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rubrics for workflow %s: %w", workflow.ID, err)
	}

	prior := execution.Proposal

	execution.Iteration++
	execution.Feedback = append(execution.Feedback, models.FeedbackEntry{
		Role:      models.FeedbackRoleUser,
		Text:      feedback,
		Timestamp: e.now(),
	})

	if err := e.move(ctx, "Iterate", execution, models.ExecutionStatusIterating); err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Iterating on candidate", "iteration", execution.Iteration)
	e.publish(ctx, events.ExecutionIterated{
		BaseEvent: events.NewBaseEvent(events.ExecutionIteratedEvent, execution),
		Iteration: execution.Iteration,
		Feedback:  feedback,
	})

	return e.generate(ctx, logger, workflow, rubrics, execution, prior, feedback)
}

// generate moves the execution to generating, builds and scores a candidate, and
// stores it together with the awaiting_user transition in a single write.
func (e *Executor) generate(
	ctx context.Context,
	logger *slog.Logger,
	workflow *models.Workflow,
	rubrics []*models.WorkflowRubric,
	execution *models.WorkflowExecution,
	prior *models.AgendaProposal,
	feedback string,
) (*Outcome, error) {
	if err := e.move(ctx, "Generate", execution, models.ExecutionStatusGenerating); err != nil {
		return e.interrupted(ctx, logger, execution, err)
	}

	pc, err := e.deps.Gatherer.Gather(ctx, workflow, execution)
	if err != nil {
		return e.fail(ctx, logger, execution, err.Error(), &ExecutionError{
			Op:          "Generate",
			ExecutionID: execution.ID,
			Err:         ErrWorkflowMisconfigured,
			Message:     err.Error(),
			Cause:       err,
		})
	}

	execution.Context = pc

	synthCtx, span := otelhelper.StartSpan(ctx, e.deps.Tracer, "workflow.synthesize",
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
		attribute.Int(otelhelper.IterationKey, execution.Iteration),
	)

	proposal, err := e.deps.Synthesizer.Synthesize(synthCtx, pc, prior, feedback)
	if err != nil {
		otelhelper.SetError(span, err)
		span.End()

		return e.fail(ctx, logger, execution, err.Error(), &ExecutionError{
			Op:          "Generate",
			ExecutionID: execution.ID,
			Err:         ErrSynthesisFailure,
			Message:     err.Error(),
			Cause:       err,
		})
	}

	result := rubric.Evaluate(proposal, rubrics)
	rubric.Apply(proposal, result)
	metrics.RecordEvaluation(result.Valid, result.AggregateScore)

	span.SetAttributes(
		attribute.Int(otelhelper.ItemsKey, len(proposal.Items)),
		attribute.Float64(otelhelper.ScoreKey, result.AggregateScore),
	)
	span.End()

	keptProposal, keptResults := execution.Proposal, execution.Results

	execution.Proposal = proposal
	execution.Results = result.Results
	execution.ErrorMessage = ""

	if err := e.move(ctx, "Generate", execution, models.ExecutionStatusAwaitingUser); err != nil {
		execution.Proposal, execution.Results = keptProposal, keptResults

		return e.interrupted(ctx, logger, execution, err)
	}

	hardFailures := make([]string, 0, len(result.HardFailures))
	for _, failure := range result.HardFailures {
		hardFailures = append(hardFailures, failure.RubricName)
	}

	logger.InfoContext(ctx, "Candidate ready for review",
		"iteration", execution.Iteration,
		"items", len(proposal.Items),
		"score", result.AggregateScore,
		"valid", result.Valid,
	)

	e.publish(ctx, events.ExecutionProposed{
		BaseEvent:    events.NewBaseEvent(events.ExecutionProposedEvent, execution),
		Iteration:    execution.Iteration,
		Score:        result.AggregateScore,
		Valid:        result.Valid,
		Items:        len(proposal.Items),
		HardFailures: hardFailures,
	})

	return newOutcome(execution), nil
}

// interrupted handles a lost write on the generation path. A conflict means another
// request owns the execution; any other error would strand it in a status nothing
// resumes, so it is stored as failed instead.
func (e *Executor) interrupted(ctx context.Context, logger *slog.Logger, execution *models.WorkflowExecution, cause error) (*Outcome, error) {
	if IsStateConflict(cause) {
		return nil, cause
	}

	return e.fail(ctx, logger, execution, cause.Error(), cause)
}

// fail stores the execution as failed and returns failure with the execution. The
// previous candidate, if any, is kept so that a later iterate can revise it.
func (e *Executor) fail(ctx context.Context, logger *slog.Logger, execution *models.WorkflowExecution, message string, failure error) (*Outcome, error) {
	if err := e.markFailed(ctx, execution, message); err != nil {
		if IsStateConflict(err) {
			return nil, err
		}

		logger.ErrorContext(ctx, "Failed to store execution as failed", "status", execution.Status, "error", err)

		return newOutcome(execution), failure
	}

	logger.ErrorContext(ctx, "Execution failed", "error", failure)
	e.publish(ctx, events.ExecutionFailed{
		BaseEvent: events.NewBaseEvent(events.ExecutionFailedEvent, execution),
		Error:     message,
	})

	return newOutcome(execution), failure
}

// markFailed moves the execution to failed. A write lost to anything but a conflict
// is retried once on a context the caller can no longer cancel.
func (e *Executor) markFailed(ctx context.Context, execution *models.WorkflowExecution, message string) error {
	execution.ErrorMessage = message

	err := e.move(ctx, "Generate", execution, models.ExecutionStatusFailed)
	if err == nil || IsStateConflict(err) {
		return err
	}

	return e.move(context.WithoutCancel(ctx), "Generate", execution, models.ExecutionStatusFailed)
}

// move validates the transition and persists it with a compare-and-swap on the
// current status and revision. On success the in-memory execution carries the new
// status and revision.
func (e *Executor) move(ctx context.Context, op string, execution *models.WorkflowExecution, to models.ExecutionStatus) error {
	from := execution.Status

	if err := Transition(from, to); err != nil {
		return &ExecutionError{Op: op, ExecutionID: execution.ID, Err: ErrStateConflict, Message: err.Error()}
	}

	execution.Status = to

	if err := e.deps.Executions.Update(ctx, execution, from); err != nil {
		execution.Status = from

		return classify(op, execution.ID, err)
	}

	metrics.RecordTransition(string(from), string(to))

	return nil
}

func (e *Executor) load(ctx context.Context, op, executionID, userID string) (*models.WorkflowExecution, error) {
	execution, err := e.deps.Executions.GetByID(ctx, executionID)
	if err != nil {
		return nil, classify(op, executionID, err)
	}

	if execution.UserID != userID {
		return nil, newError(op, executionID, ErrNotFound, "")
	}

	return execution, nil
}

func (e *Executor) lock(ctx context.Context, op, executionID string) (func(), error) {
	if e.deps.Locker == nil {
		return func() {}, nil
	}

	release, err := e.deps.Locker.Acquire(ctx, "execution:"+executionID)
	if err != nil {
		if errors.Is(err, locker.ErrNotAcquired) {
			return nil, newError(op, executionID, ErrStateConflict, "another request is already handling this execution")
		}

		return nil, fmt.Errorf("failed to lock execution %s: %w", executionID, err)
	}

	return release, nil
}

func (e *Executor) resolveWorkflow(ctx context.Context, req ExecuteRequest) (*models.Workflow, error) {
	var (
		workflow *models.Workflow
		err      error
	)

	if req.WorkflowID != "" {
		workflow, err = e.deps.Workflows.GetByID(ctx, req.WorkflowID)
	} else {
		workflow, err = e.deps.Workflows.GetBySlug(ctx, req.UserID, req.WorkflowSlug)
	}

	if err != nil {
		return nil, classify("Execute", "", err)
	}

	if workflow.UserID != req.UserID {
		return nil, newError("Execute", "", ErrNotFound, "workflow "+req.WorkflowID)
	}

	return workflow, nil
}

func (e *Executor) appendFeedback(execution *models.WorkflowExecution, role models.FeedbackRole, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	execution.Feedback = append(execution.Feedback, models.FeedbackEntry{Role: role, Text: text, Timestamp: e.now()})
}

func (e *Executor) publish(ctx context.Context, event eventbus.Event) {
	if e.deps.Events == nil {
		return
	}

	var key string
	if keyed, ok := event.(interface{ Key() string }); ok {
		key = keyed.Key()
	}

	if err := e.deps.Events.Publish(ctx, key, event); err != nil {
		e.logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

func conflictMessage(status models.ExecutionStatus, verb string) string {
	return fmt.Sprintf("an execution in status %s cannot be %s", status, verb)
}

func validateExecuteRequest(req ExecuteRequest) error {
	switch {
	case req.UserID == "":
		return newError("Execute", "", ErrInvalidRequest, "user ID is required")
	case req.WorkflowID == "" && req.WorkflowSlug == "":
		return newError("Execute", "", ErrInvalidRequest, "workflow ID or slug is required")
	}

	if _, err := time.Parse(models.DateLayout, req.TargetDate); err != nil {
		return newError("Execute", "", ErrInvalidRequest, fmt.Sprintf("target date %q must be YYYY-MM-DD", req.TargetDate))
	}

	return nil
}
