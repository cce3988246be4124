package workflow

import (
	"context"
	"fmt"

	"github.com/dukex/approvals/pkg/events"
	"github.com/dukex/approvals/pkg/models"
	"github.com/dukex/approvals/pkg/protocol"
)

// WarningKind says which post-commit effect failed.
type WarningKind string

const (
	WarningSideEffect   WarningKind = "side_effect"
	WarningNotification WarningKind = "notification"
	WarningAudit        WarningKind = "audit"
)

// DispatchWarning is a failure after a committed transition. It never undoes the transition.
type DispatchWarning struct {
	Kind    WarningKind `json:"kind"`
	Type    string      `json:"type,omitempty"`
	Message string      `json:"message"`
}

func (p *Progressor) afterCommit(ctx context.Context, t transition) []DispatchWarning {
	request := t.result.Request
	name := eventName(t.result.Outcome)

	p.Metrics.Transition(string(request.Status))

	var warnings []DispatchWarning

	if t.result.Outcome == OutcomeApproved && p.SideEffects != nil {
		if w, failed := p.dispatch(ctx, request); failed {
			warnings = append(warnings, w)
		}
	}

	details := map[string]any{"from_step": t.fromStep}
	if t.result.Reason != "" {
		details["reason"] = t.result.Reason
	}

	if len(t.result.Skipped) > 0 {
		details["skipped_steps"] = t.result.Skipped
	}

	warnings = append(warnings, p.Record(ctx, protocol.AuditEvent{
		Type:       name,
		RequestID:  request.ID,
		ChainID:    request.ChainID,
		ActorID:    models.SystemActor,
		FromStatus: string(t.fromStatus),
		ToStatus:   string(request.Status),
		Step:       request.CurrentStep,
		Details:    details,
		Timestamp:  request.UpdatedAt,
	})...)

	recipients := []string{request.RequesterID}
	if t.result.Outcome == OutcomeAdvanced {
		recipients = request.AssignedTo
	}

	warnings = append(warnings, p.Announce(ctx, recipients, name, request)...)

	return warnings
}

func (p *Progressor) dispatch(ctx context.Context, request *models.ApprovalRequest) (DispatchWarning, bool) {
	ran, err := p.SideEffects.Dispatch(ctx, request)
	if err == nil {
		if ran {
			p.Logger.InfoContext(ctx, "Side effect completed", "request_id", request.ID, "type", request.SideEffectType())
		}

		return DispatchWarning{}, false
	}

	actionType := request.SideEffectType()
	p.Metrics.DispatchFailed(actionType)
	p.Logger.ErrorContext(ctx, "Side effect failed, request stays approved",
		"request_id", request.ID,
		"type", actionType,
		"error", err)

	p.Record(ctx, protocol.AuditEvent{
		Type:      events.SideEffectFailed,
		RequestID: request.ID,
		ChainID:   request.ChainID,
		ActorID:   models.SystemActor,
		ToStatus:  string(request.Status),
		Step:      request.CurrentStep,
		Details:   map[string]any{"type": actionType, "error": err.Error()},
		Timestamp: p.now().UTC(),
	})

	return DispatchWarning{Kind: WarningSideEffect, Type: actionType, Message: err.Error()}, true
}

// Record writes event to the audit sink. A failure is logged and returned as a warning.
func (p *Progressor) Record(ctx context.Context, event protocol.AuditEvent) []DispatchWarning {
	if p.Audit == nil {
		return nil
	}

	err := p.Audit.RecordEvent(ctx, event)
	if err == nil {
		return nil
	}

	p.Logger.WarnContext(ctx, "Failed to record audit event",
		"request_id", event.RequestID,
		"type", event.Type,
		"error", err)

	return []DispatchWarning{{Kind: WarningAudit, Type: event.Type, Message: err.Error()}}
}

// Announce notifies recipients about request. A failure is logged and returned as a warning.
func (p *Progressor) Announce(ctx context.Context, recipients []string, name string, request *models.ApprovalRequest) []DispatchWarning {
	if p.Notifier == nil || len(recipients) == 0 {
		return nil
	}

	err := p.Notifier.Notify(ctx, recipients, name, Payload(request))
	if err == nil {
		return nil
	}

	p.Logger.WarnContext(ctx, "Failed to notify",
		"request_id", request.ID,
		"event", name,
		"error", err)

	return []DispatchWarning{{Kind: WarningNotification, Type: name, Message: fmt.Sprint(err)}}
}

// Payload is the notification body describing request.
func Payload(request *models.ApprovalRequest) map[string]any {
	return map[string]any{
		"request_id":   request.ID,
		"document_id":  request.DocumentID,
		"chain_id":     request.ChainID,
		"status":       string(request.Status),
		"current_step": request.CurrentStep,
		"total_steps":  request.TotalSteps,
		"priority":     string(request.Priority),
	}
}
