// Package main provides the approvals binary: the HTTP API and the escalation sweeper.
package main

import (
	"context"
	"os"

	"github.com/dukex/approvals/pkg/escalation"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	cmd := &cli.Command{
		Name:                  "approvals",
		Usage:                 "Route documents through approval chains",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (postgres://... or file://<dir>, single process only)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "admin-user-id",
				Usage:   "User allowed to act on any request",
				Sources: cli.EnvVars("APPROVALS_ADMIN_USER_ID"),
			},
			&cli.StringFlag{
				Name:    "admin-role",
				Usage:   "Identity role granting admin rights",
				Sources: cli.EnvVars("APPROVALS_ADMIN_ROLE"),
			},
			&cli.BoolFlag{
				Name:    "otel-enabled",
				Usage:   "Export traces over OTLP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "api",
				Usage: "Start the HTTP API",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "port",
						Aliases: []string{"p"},
						Usage:   "Port to run the API server on",
						Value:   defaultPort,
						Sources: cli.EnvVars("PORT"),
					},
					&cli.StringFlag{
						Name:    "default-chain-id",
						Usage:   "Chain used when no routing rule matches a submitted document",
						Sources: cli.EnvVars("APPROVALS_DEFAULT_CHAIN_ID"),
					},
				},
				Action: runAPI,
			},
			{
				Name:  "escalator",
				Usage: "Escalate overdue requests on a schedule",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "escalation-schedule",
						Usage:   "Cron spec of the escalation sweep",
						Value:   escalation.DefaultSchedule,
						Sources: cli.EnvVars("ESCALATION_SCHEDULE"),
					},
					&cli.StringFlag{
						Name:    "redis-url",
						Usage:   "Redis URL for the cluster-wide sweep lock",
						Sources: cli.EnvVars("REDIS_URL"),
					},
				},
				Action: runEscalator,
			},
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
