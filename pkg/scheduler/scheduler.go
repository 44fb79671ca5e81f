// Package scheduler starts executions of workflows that carry an enabled cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/agendaflow/pkg/models"
	"github.com/dukex/agendaflow/pkg/persistence"
	"github.com/dukex/agendaflow/pkg/workflow"
	"github.com/robfig/cron/v3"
)

// DefaultRefreshInterval is how often the scheduled workflows are re-read.
const DefaultRefreshInterval = time.Minute

// Starter begins an execution. *workflow.Executor implements it.
type Starter interface {
	Execute(ctx context.Context, req workflow.ExecuteRequest) (*workflow.Outcome, error)
}

type entry struct {
	id   cron.EntryID
	spec string
}

// Scheduler keeps one cron entry per scheduled workflow and starts an execution for
// the owner, targeting the current date in the schedule timezone, each time it fires.
type Scheduler struct {
	workflows persistence.WorkflowRepository
	starter   Starter
	cron      *cron.Cron
	refresh   time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]entry
}

func New(workflows persistence.WorkflowRepository, starter Starter, refresh time.Duration, logger *slog.Logger) *Scheduler {
	if refresh <= 0 {
		refresh = DefaultRefreshInterval
	}

	logger = logger.With("module", "scheduler")
	cronLog := cronLogger{logger: logger}

	return &Scheduler{
		workflows: workflows,
		starter:   starter,
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cronLog),
			cron.Recover(cronLog),
		)),
		refresh: refresh,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]entry),
	}
}

// Start registers the scheduled workflows and begins firing. The set is re-read every
// refresh interval until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.Sync(ctx); err != nil {
		return err
	}

	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.refresh), func() {
		if err := s.Sync(ctx); err != nil {
			s.logger.ErrorContext(ctx, "Failed to refresh scheduled workflows", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add refresh job: %w", err)
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "Scheduler started", "workflows", s.Len())

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Len returns the number of scheduled workflows.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

// Sync reconciles the cron entries with the scheduled workflows in the repository.
func (s *Scheduler) Sync(ctx context.Context) error {
	workflows, err := s.workflows.ListScheduled(ctx)
	if err != nil {
		return fmt.Errorf("failed to list scheduled workflows: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(workflows))

	for _, wf := range workflows {
		if wf.Schedule == nil || !wf.Schedule.Enabled {
			continue
		}

		seen[wf.ID] = struct{}{}
		spec := wf.Schedule.Spec()

		if existing, ok := s.entries[wf.ID]; ok {
			if existing.spec == spec {
				continue
			}

			s.cron.Remove(existing.id)
			delete(s.entries, wf.ID)
		}

		workflowID := wf.ID

		id, err := s.cron.AddFunc(spec, func() { s.fire(ctx, workflowID) })
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping workflow with invalid schedule", "workflow_id", wf.ID, "spec", spec, "error", err)

			continue
		}

		s.entries[wf.ID] = entry{id: id, spec: spec}
		s.logger.DebugContext(ctx, "Scheduled workflow", "workflow_id", wf.ID, "spec", spec)
	}

	for workflowID, existing := range s.entries {
		if _, ok := seen[workflowID]; !ok {
			s.cron.Remove(existing.id)
			delete(s.entries, workflowID)
			s.logger.DebugContext(ctx, "Unscheduled workflow", "workflow_id", workflowID)
		}
	}

	return nil
}

// fire re-reads the workflow so that edits made since the last sync apply.
func (s *Scheduler) fire(ctx context.Context, workflowID string) {
	wf, err := s.workflows.GetByID(ctx, workflowID)
	if err != nil {
		s.logger.WarnContext(ctx, "Scheduled workflow no longer available", "workflow_id", workflowID, "error", err)

		return
	}

	if err := s.Fire(ctx, wf); err != nil {
		s.logger.ErrorContext(ctx, "Scheduled execution failed", "workflow_id", workflowID, "error", err)
	}
}

// Fire starts one execution of the workflow for its owner.
func (s *Scheduler) Fire(ctx context.Context, wf *models.Workflow) error {
	targetDate, err := TargetDate(wf.Schedule, s.now())
	if err != nil {
		return err
	}

	firedAt := s.now().UTC()

	outcome, err := s.starter.Execute(ctx, workflow.ExecuteRequest{
		UserID:     wf.UserID,
		WorkflowID: wf.ID,
		TargetDate: targetDate,
		InputData: map[string]any{
			"trigger":  "schedule",
			"fired_at": firedAt.Format(time.RFC3339),
		},
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Scheduled execution started",
		"workflow_id", wf.ID,
		"execution_id", outcome.Execution.ID,
		"target_date", targetDate,
		"status", outcome.Execution.Status,
	)

	return nil
}

// TargetDate is the calendar date of the reference time in the schedule timezone.
func TargetDate(schedule *models.Schedule, reference time.Time) (string, error) {
	loc := time.UTC

	if schedule != nil {
		var err error

		loc, err = schedule.Location()
		if err != nil {
			return "", err
		}
	}

	return reference.In(loc).Format(models.DateLayout), nil
}

// cronLogger routes cron's own logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
