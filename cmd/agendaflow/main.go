package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dukex/agendaflow/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	cmd := &cli.Command{
		Name:                  "agendaflow",
		Usage:                 "Plan agendas with LLM-synthesized, rubric-checked workflows",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			APICommand(),
			ValidateRubricsCommand(),
			WatchEventsCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func logFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text, json)",
			Value:   log.FormatText,
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
	}
}

func setupLogging(command *cli.Command) {
	log.Setup(command.String("log-level"), command.String("log-format"))
}

func eventBusFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringSliceFlag{
			Name:    "kafka-brokers",
			Usage:   "Kafka brokers, used when the event bus is kafka",
			Value:   []string{"localhost:9092"},
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
	}
}
