package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/dukex/agendaflow/pkg/cmd"
	"github.com/dukex/agendaflow/pkg/eventbus"
	"github.com/dukex/agendaflow/pkg/events"
	"github.com/dukex/agendaflow/pkg/log"
	"github.com/dukex/agendaflow/pkg/models"
	"github.com/dukex/agendaflow/pkg/rubric"
	cli "github.com/urfave/cli/v3"
)

func ValidateRubricsCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate-rubrics",
		Usage:     "Check a YAML file of default rubrics",
		ArgsUsage: "<file>",
		Flags:     logFlags(),
		Action: func(ctx context.Context, command *cli.Command) error {
			setupLogging(command)

			path := command.Args().First()
			if path == "" {
				return errors.New("missing rubric file")
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}

			return reportRubrics(command.Root().Writer, data)
		},
	}
}

// reportRubrics parses data and prints how many rubrics each workflow type gets.
func reportRubrics(w io.Writer, data []byte) error {
	seeds, err := rubric.ParseDefaults(data)
	if err != nil {
		return err
	}

	types := make([]string, 0, len(seeds))
	for workflowType := range seeds {
		types = append(types, workflowType)
	}

	sort.Strings(types)

	for _, workflowType := range types {
		hard := 0

		for _, seed := range seeds[workflowType] {
			if seed.Constraint == models.ConstraintHard {
				hard++
			}
		}

		_, err := fmt.Fprintf(w, "%s: %d rubrics (%d hard)\n", workflowType, len(seeds[workflowType]), hard)
		if err != nil {
			return err
		}
	}

	return nil
}

func WatchEventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch-events",
		Usage: "Log execution lifecycle events as they are published",
		Flags: append(logFlags(), eventBusFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			setupLogging(command)

			logger := log.WithModule("watch-events")

			bus, err := cmd.NewEventBus(command.String("event-bus"), command.StringSlice("kafka-brokers"), logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := bus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := watch(ctx, bus, logger); err != nil {
				return err
			}

			logger.InfoContext(ctx, "Watching execution events")
			<-ctx.Done()

			return nil
		},
	}
}

func watch(ctx context.Context, bus eventbus.EventSubscriber, logger *slog.Logger) error {
	for _, eventType := range events.EventTypes {
		err := bus.Handle(eventType, func(ctx context.Context, event any) error {
			logger.InfoContext(ctx, "Execution event", "event_type", eventType, "event", event)

			return nil
		})
		if err != nil {
			return err
		}
	}

	return bus.Subscribe(ctx)
}
