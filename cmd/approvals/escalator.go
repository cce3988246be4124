package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/dukex/approvals/pkg/cmd"
	"github.com/dukex/approvals/pkg/escalation"
	"github.com/dukex/approvals/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func newSweeper(ctx context.Context, e *engine, command *cli.Command) (*escalation.Sweeper, func() error) {
	locker, closeLocker := cmd.NewLocker(ctx, e.logger, command.String("redis-url"))

	return escalation.NewSweeper(escalation.Dependencies{
		Requests: e.persistence.RequestRepository(),
		Chains:   e.persistence.ChainRepository(),
		Notifier: e.notifier,
		Audit:    e.audit,
		Locker:   locker,
		Metrics:  e.metrics,
		Tracer:   e.tracer,
		Logger:   e.logger,
	}, command.String("escalation-schedule")), closeLocker
}

func runEscalator(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("escalator")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e, err := newEngine(ctx, command, logger)
	if err != nil {
		return err
	}
	defer e.close(context.WithoutCancel(ctx))

	err = e.eventBus.Subscribe(ctx)
	if err != nil {
		return err
	}

	sweeper, closeLocker := newSweeper(ctx, e, command)
	defer func() {
		if err := closeLocker(); err != nil {
			logger.ErrorContext(ctx, "Failed to close lock", "error", err)
		}
	}()

	err = sweeper.Start(ctx)
	if err != nil {
		return err
	}

	<-ctx.Done()
	logger.InfoContext(ctx, "Shutting down escalator")
	sweeper.Stop()

	return nil
}
