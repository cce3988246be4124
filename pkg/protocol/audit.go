package protocol

import (
	"context"
	"time"
)

// AuditEvent describes one state transition of an approval request.
type AuditEvent struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	RequestID  string         `json:"request_id"`
	ChainID    string         `json:"chain_id"`
	ActorID    string         `json:"actor_id"`
	FromStatus string         `json:"from_status,omitempty"`
	ToStatus   string         `json:"to_status"`
	Step       int            `json:"step"`
	Details    map[string]any `json:"details,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// AuditSink is the append-only audit log. Failures never block a transition.
type AuditSink interface {
	RecordEvent(ctx context.Context, event AuditEvent) error
}
