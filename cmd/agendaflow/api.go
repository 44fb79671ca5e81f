// Package main wires the agendaflow HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dukex/agendaflow/pkg/cmd"
	"github.com/dukex/agendaflow/pkg/locker"
	"github.com/dukex/agendaflow/pkg/log"
	"github.com/dukex/agendaflow/pkg/otelhelper"
	"github.com/dukex/agendaflow/pkg/persistence"
	"github.com/dukex/agendaflow/pkg/scheduler"
	"github.com/dukex/agendaflow/pkg/services"
	"github.com/dukex/agendaflow/pkg/synthesis"
	"github.com/dukex/agendaflow/pkg/web"
	"github.com/dukex/agendaflow/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	cli "github.com/urfave/cli/v3"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	executor    *workflow.Executor
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	executor *workflow.Executor,
	validate *validator.Validate,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		executor:    executor,
		validate:    validate,
	}
}

func (a *API) App() *fiber.App {
	workflowService := services.NewWorkflow(a.persistence, a.validate, a.logger)
	rubricService := services.NewRubric(workflowService, a.logger)

	handlers := web.NewAPIHandlers(workflowService, rubricService, a.executor, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker(healthcheck.Config{
		Probe: func(c fiber.Ctx) bool {
			return a.persistence.HealthCheck(c.Context()) == nil
		},
	}))
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Agendaflow API")
	})

	handlers.Register(app)

	return app
}

func (a *API) Start(port int) error {
	return a.App().Listen(":" + strconv.Itoa(port))
}

func APICommand() *cli.Command {
	flags := []cli.Flag{
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Port to run the API server on",
			Value:   defaultPort,
			Sources: cli.EnvVars("PORT"),
		},
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Database connection URL for persistence (file path or postgres://)",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "llm-base-url",
			Usage:   "Base URL of the OpenAI-compatible completion API",
			Sources: cli.EnvVars("LLM_BASE_URL"),
		},
		&cli.StringFlag{
			Name:    "llm-api-key",
			Usage:   "API key of the completion API",
			Sources: cli.EnvVars("LLM_API_KEY"),
		},
		&cli.StringFlag{
			Name:    "llm-model",
			Usage:   "Model used for plan synthesis",
			Sources: cli.EnvVars("LLM_MODEL"),
		},
		&cli.DurationFlag{
			Name:    "synthesis-timeout",
			Usage:   "Deadline of one synthesis, retry included",
			Value:   synthesis.DefaultTimeout,
			Sources: cli.EnvVars("SYNTHESIS_TIMEOUT"),
		},
		&cli.IntFlag{
			Name:    "max-iterations",
			Usage:   "Revisions allowed before an execution is rejected",
			Value:   workflow.DefaultMaxIterations,
			Sources: cli.EnvVars("MAX_ITERATIONS"),
		},
		&cli.StringFlag{
			Name:    "locker-url",
			Usage:   "Execution lock backend: empty for in-process, redis:// for shared",
			Sources: cli.EnvVars("LOCKER_URL"),
		},
		&cli.StringFlag{
			Name:    "providers-path",
			Usage:   "Directory with per-user context files; empty disables integrations",
			Sources: cli.EnvVars("PROVIDERS_PATH"),
		},
		&cli.BoolFlag{
			Name:    "enable-scheduler",
			Usage:   "Start executions for workflows with an enabled schedule",
			Sources: cli.EnvVars("ENABLE_SCHEDULER"),
		},
		&cli.BoolFlag{
			Name:    "enable-tracing",
			Usage:   "Export traces through OTLP/HTTP",
			Sources: cli.EnvVars("ENABLE_TRACING"),
		},
	}

	flags = append(flags, logFlags()...)
	flags = append(flags, eventBusFlags()...)

	return &cli.Command{
		Name:   "api",
		Usage:  "Start the HTTP API",
		Flags:  flags,
		Action: runAPI,
	}
}

func runAPI(ctx context.Context, command *cli.Command) error {
	setupLogging(command)

	logger := log.WithModule("api")
	logger.InfoContext(ctx, "Initializing Agendaflow API")

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := persistence.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.StringSlice("kafka-brokers"), logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	// a lock must outlive the synthesis it guards, retry included
	lockTTL := max(locker.DefaultTTL, 2*command.Duration("synthesis-timeout"))

	executionLocker, closeLocker, err := cmd.NewLocker(ctx, command.String("locker-url"), lockTTL, logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := closeLocker(); err != nil {
			logger.ErrorContext(ctx, "Failed to close locker", "error", err)
		}
	}()

	tracer := otelhelper.NoopTracer()

	if command.Bool("enable-tracing") {
		var shutdown func(context.Context) error

		tracer, shutdown, err = otelhelper.NewTracer(ctx, "agendaflow")
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}

		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()

			if err := shutdown(shutdownCtx); err != nil {
				logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
			}
		}()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	completer := cmd.NewCompleter(
		command.String("llm-base-url"),
		command.String("llm-api-key"),
		command.String("llm-model"),
		logger,
	)

	synthesizer, err := synthesis.NewSynthesizer(completer, validate, synthesis.Config{
		Timeout: command.Duration("synthesis-timeout"),
	}, logger)
	if err != nil {
		return err
	}

	executor, err := workflow.NewExecutor(workflow.Dependencies{
		Workflows:   persistence.WorkflowRepository(),
		Rubrics:     persistence.RubricRepository(),
		Executions:  persistence.ExecutionRepository(),
		Gatherer:    workflow.NewGatherer(cmd.NewProviders(command.String("providers-path")), logger),
		Synthesizer: synthesizer,
		Events:      eventBus,
		Locker:      executionLocker,
		Tracer:      tracer,
	}, workflow.Config{MaxIterations: command.Int("max-iterations")}, logger)
	if err != nil {
		return err
	}

	if command.Bool("enable-scheduler") {
		sched := scheduler.New(persistence.WorkflowRepository(), executor, 0, logger)
		if err := sched.Start(ctx); err != nil {
			return err
		}

		defer sched.Stop()
	}

	api := NewAPI(logger, persistence, executor, validate)

	if err := api.Start(command.Int("port")); err != nil {
		return errors.Join(errors.New("failed to start API server"), err)
	}

	return nil
}
