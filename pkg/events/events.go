// Package events defines the domain events published when approval requests change state.
package events

import (
	"time"
)

type EventType string

// Topic carries every approvals event; the event type travels in message metadata.
const Topic = "approvals.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

// Request lifecycle event names. They are used as notification event types and audit event types.
const (
	RequestCreated          = "request.created"
	RequestActionRecorded   = "request.action_recorded"
	RequestAdvanced         = "request.advanced"
	RequestApproved         = "request.approved"
	RequestRejected         = "request.rejected"
	RequestEscalated        = "request.escalated"
	RequestChangesRequested = "request.changes_requested"
	RequestDelegated        = "request.delegated"
	RequestCancelled        = "request.cancelled"
	RequestResumed          = "request.resumed"
	SideEffectFailed        = "request.side_effect_failed"
)

// Bus envelope types.
const (
	NotificationRequestedEvent EventType = "notification.requested"
	AuditRecordedEvent         EventType = "audit.recorded"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	RequestID string         `json:"request_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NotificationRequested asks the delivery side to tell Recipients about an event.
type NotificationRequested struct {
	BaseEvent

	Recipients []string       `json:"recipients"`
	EventName  string         `json:"event_name"`
	Payload    map[string]any `json:"payload,omitempty"`
}

func (n NotificationRequested) GetType() EventType {
	return NotificationRequestedEvent
}

// AuditRecorded carries one audit trail entry.
type AuditRecorded struct {
	BaseEvent

	EventName  string         `json:"event_name"`
	ChainID    string         `json:"chain_id,omitempty"`
	ActorID    string         `json:"actor_id,omitempty"`
	FromStatus string         `json:"from_status,omitempty"`
	ToStatus   string         `json:"to_status,omitempty"`
	Step       int            `json:"step"`
	Details    map[string]any `json:"details,omitempty"`
}

func (a AuditRecorded) GetType() EventType {
	return AuditRecordedEvent
}
