package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/approvals/pkg/audit"
	"github.com/dukex/approvals/pkg/cmd"
	"github.com/dukex/approvals/pkg/eventbus"
	"github.com/dukex/approvals/pkg/metrics"
	"github.com/dukex/approvals/pkg/notify"
	"github.com/dukex/approvals/pkg/otelhelper"
	"github.com/dukex/approvals/pkg/persistence"
	"github.com/dukex/approvals/pkg/protocol"
	"github.com/prometheus/client_golang/prometheus"
	promcollectors "github.com/prometheus/client_golang/prometheus/collectors"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

// engine holds the collaborators shared by the api and escalator commands.
type engine struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	notifier    *notify.BusNotifier
	audit       protocol.AuditSink
	documents   *protocol.StaticDocuments
	identities  protocol.IdentityStore
	registry    *prometheus.Registry
	metrics     *metrics.Collectors
	tracer      trace.Tracer
}

func newEngine(ctx context.Context, command *cli.Command, logger *slog.Logger) (*engine, error) {
	tracer := otelhelper.NoopTracer()

	if command.Bool("otel-enabled") {
		t, err := otelhelper.NewTracer(ctx, "approvals")
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}

		tracer = t
	}

	p := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	bus := cmd.NewEventBus(command.String("event-bus"), logger)

	return assemble(logger, p, bus, tracer)
}

func assemble(logger *slog.Logger, p persistence.Persistence, bus eventbus.EventBus, tracer trace.Tracer) (*engine, error) {
	err := notify.Subscribe(bus, notify.LogDelivery{Logger: logger.With("module", "delivery")})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe notification delivery: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		promcollectors.NewGoCollector(),
		promcollectors.NewProcessCollector(promcollectors.ProcessCollectorOpts{}),
	)

	return &engine{
		logger:      logger,
		persistence: p,
		eventBus:    bus,
		notifier:    notify.NewBusNotifier(bus, logger),
		audit:       audit.Fanout{audit.NewLogSink(logger), audit.NewBusSink(bus)},
		documents:   protocol.NewStaticDocuments(),
		identities:  protocol.NewStaticDirectory(),
		registry:    registry,
		metrics:     metrics.NewCollectors(registry),
		tracer:      tracer,
	}, nil
}

// close waits for queued notifications, then closes the bus and the store.
func (e *engine) close(ctx context.Context) {
	e.notifier.Wait()

	if err := e.eventBus.Close(); err != nil {
		e.logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
	}

	if err := e.persistence.Close(ctx); err != nil {
		e.logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
	}
}
