package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/agendaflow/pkg/metrics"
	"github.com/dukex/agendaflow/pkg/models"
	"github.com/dukex/agendaflow/pkg/providers"
	"golang.org/x/sync/errgroup"
)

// Gatherer builds the PlanContext of an execution from the enabled providers.
// Providers run concurrently; a failing provider is logged and its section left
// nil, it never fails the execution.
type Gatherer struct {
	providers providers.Set
	logger    *slog.Logger
}

func NewGatherer(set providers.Set, logger *slog.Logger) *Gatherer {
	return &Gatherer{providers: set, logger: logger.With("module", "context_gatherer")}
}

// Gather returns a fresh context for the execution. Only a malformed target date
// or schedule timezone is an error.
func (g *Gatherer) Gather(ctx context.Context, workflow *models.Workflow, execution *models.WorkflowExecution) (*models.PlanContext, error) {
	loc := time.UTC
	if workflow.Schedule != nil {
		var err error

		loc, err = workflow.Schedule.Location()
		if err != nil {
			return nil, err
		}
	}

	window, err := models.DefaultWindow(execution.TargetDate, loc)
	if err != nil {
		return nil, err
	}

	pc := &models.PlanContext{
		UserID:     execution.UserID,
		TargetDate: execution.TargetDate,
		Window:     window,
		InputData:  execution.InputData,
	}

	logger := g.logger.With("execution_id", execution.ID, "user_id", execution.UserID)

	var group errgroup.Group

	if g.providers.Calendar != nil && g.enabled(workflow, models.IntegrationCalendar, models.CapabilityGatherCalendar) {
		group.Go(func() error {
			calendar, err := g.providers.Calendar.CalendarContext(ctx, execution.UserID, window)
			pc.Calendar = report(ctx, logger, "calendar", calendar, err)

			return nil
		})
	}

	if g.providers.Wellness != nil && g.enabled(workflow, models.IntegrationWellness, models.CapabilityGatherWellness) {
		group.Go(func() error {
			wellness, err := g.providers.Wellness.WellnessContext(ctx, execution.UserID)
			pc.Wellness = report(ctx, logger, "wellness", wellness, err)

			return nil
		})
	}

	if g.providers.Financial != nil && g.enabled(workflow, models.IntegrationFinancial, models.CapabilityGatherFinancial) {
		group.Go(func() error {
			financial, err := g.providers.Financial.FinancialContext(ctx, execution.UserID)
			pc.Financial = report(ctx, logger, "financial", financial, err)

			return nil
		})
	}

	if g.providers.Pursuits != nil && workflow.HasCapability(models.CapabilityGatherPursuits) {
		group.Go(func() error {
			pursuits, err := g.providers.Pursuits.Pursuits(ctx, execution.UserID, execution.TargetDate)
			if err != nil {
				logger.WarnContext(ctx, "Failed to fetch context", "source", "pursuits", "error", err)
				metrics.RecordContextFetch("pursuits", "error")

				return nil
			}

			metrics.RecordContextFetch("pursuits", "ok")
			pc.Pursuits = pursuits

			return nil
		})
	}

	_ = group.Wait()

	return pc, nil
}

func (g *Gatherer) enabled(workflow *models.Workflow, integration models.Integration, capability models.Capability) bool {
	return workflow.HasIntegration(integration) && workflow.HasCapability(capability)
}

func report[T any](ctx context.Context, logger *slog.Logger, source string, value *T, err error) *T {
	switch {
	case err != nil:
		logger.WarnContext(ctx, "Failed to fetch context", "source", source, "error", err)
		metrics.RecordContextFetch(source, "error")

		return nil
	case value == nil:
		metrics.RecordContextFetch(source, "not_connected")
	default:
		metrics.RecordContextFetch(source, "ok")
	}

	return value
}
