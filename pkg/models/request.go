package models

import (
	"slices"
	"time"
)

// RequestStatus is the lifecycle state of an approval request.
type RequestStatus string

const (
	RequestStatusPending          RequestStatus = "pending"
	RequestStatusInProgress       RequestStatus = "in_progress"
	RequestStatusApproved         RequestStatus = "approved"
	RequestStatusRejected         RequestStatus = "rejected"
	RequestStatusEscalated        RequestStatus = "escalated"
	RequestStatusChangesRequested RequestStatus = "changes_requested"
	RequestStatusCancelled        RequestStatus = "cancelled"
)

// IsTerminal reports whether no further action is permitted.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusApproved || s == RequestStatusRejected || s == RequestStatusCancelled
}

// IsHalted reports whether progression must not touch the request.
func (s RequestStatus) IsHalted() bool {
	return s.IsTerminal() || s == RequestStatusEscalated || s == RequestStatusChangesRequested
}

// IsOpen reports whether the request is awaiting the current step.
func (s RequestStatus) IsOpen() bool {
	return s == RequestStatusPending || s == RequestStatusInProgress
}

// Priority of an approval request.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
	PriorityUrgent   Priority = "urgent"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical, PriorityUrgent:
		return true
	default:
		return false
	}
}

// MetadataTypeKey is the metadata key naming the deferred side effect of a request.
const MetadataTypeKey = "type"

// ApprovalRequest is one document's journey through one chain.
type ApprovalRequest struct {
	ID             string         `json:"id"`
	DocumentID     string         `json:"document_id"               validate:"required"`
	ChainID        string         `json:"chain_id"                  validate:"required"`
	RequesterID    string         `json:"requester_id"              validate:"required"`
	Status         RequestStatus  `json:"status"`
	Priority       Priority       `json:"priority"`
	CurrentStep    int            `json:"current_step"`
	TotalSteps     int            `json:"total_steps"`
	AssignedTo     []string       `json:"assigned_to"`
	Deadline       *time.Time     `json:"deadline,omitempty"`
	EscalationDate *time.Time     `json:"escalation_date,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Version        int64          `json:"version"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
}

// IsAssigned reports whether userID is an approver of the current step.
func (r *ApprovalRequest) IsAssigned(userID string) bool {
	return slices.Contains(r.AssignedTo, userID)
}

// SideEffectType returns the metadata discriminator of the deferred action, if any.
func (r *ApprovalRequest) SideEffectType() string {
	if r.Metadata == nil {
		return ""
	}

	t, _ := r.Metadata[MetadataTypeKey].(string)

	return t
}

// IsOverdue reports whether the deadline has passed at now.
func (r *ApprovalRequest) IsOverdue(now time.Time) bool {
	return r.Deadline != nil && now.After(*r.Deadline)
}

// NeedsEscalation is the selection predicate of the escalation sweep.
func (r *ApprovalRequest) NeedsEscalation(now time.Time) bool {
	if r.Status != RequestStatusPending || r.Deadline == nil || !r.Deadline.Before(now) {
		return false
	}

	return r.EscalationDate == nil || r.EscalationDate.Before(*r.Deadline)
}

// Clone returns a deep copy suitable for optimistic read-modify-write.
func (r *ApprovalRequest) Clone() *ApprovalRequest {
	clone := *r
	clone.AssignedTo = slices.Clone(r.AssignedTo)

	if r.Metadata != nil {
		clone.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			clone.Metadata[k] = v
		}
	}

	return &clone
}
