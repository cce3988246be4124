// Package audit provides AuditSink implementations.
package audit

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dukex/approvals/pkg/eventbus"
	"github.com/dukex/approvals/pkg/events"
	"github.com/dukex/approvals/pkg/protocol"
)

// LogSink writes audit events as structured log lines.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With("module", "audit")}
}

func (s *LogSink) RecordEvent(ctx context.Context, event protocol.AuditEvent) error {
	s.logger.InfoContext(ctx, "Audit event",
		"type", event.Type,
		"request_id", event.RequestID,
		"chain_id", event.ChainID,
		"actor_id", event.ActorID,
		"from_status", event.FromStatus,
		"to_status", event.ToStatus,
		"step", event.Step)

	return nil
}

// BusSink publishes audit events to the event bus, keyed by request id.
type BusSink struct {
	bus eventbus.EventBus
}

func NewBusSink(bus eventbus.EventBus) *BusSink {
	return &BusSink{bus: bus}
}

func (s *BusSink) RecordEvent(ctx context.Context, event protocol.AuditEvent) error {
	id := event.ID
	if id == "" {
		id = s.bus.GenerateID()
	}

	return s.bus.Publish(ctx, event.RequestID, events.AuditRecorded{
		BaseEvent: events.BaseEvent{
			ID:        id,
			Type:      events.AuditRecordedEvent,
			Timestamp: event.Timestamp,
			RequestID: event.RequestID,
		},
		EventName:  event.Type,
		ChainID:    event.ChainID,
		ActorID:    event.ActorID,
		FromStatus: event.FromStatus,
		ToStatus:   event.ToStatus,
		Step:       event.Step,
		Details:    event.Details,
	})
}

// Fanout records every event in all sinks and joins their errors.
type Fanout []protocol.AuditSink

func (f Fanout) RecordEvent(ctx context.Context, event protocol.AuditEvent) error {
	var errs []error

	for _, sink := range f {
		if err := sink.RecordEvent(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
