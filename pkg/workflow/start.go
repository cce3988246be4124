package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/approvals/pkg/events"
	"github.com/dukex/approvals/pkg/models"
	"github.com/dukex/approvals/pkg/otelhelper"
	"github.com/dukex/approvals/pkg/protocol"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// ErrChainUnusable is returned when starting a request on an inactive, disabled or empty chain.
	ErrChainUnusable = errors.New("chain cannot start requests")

	// ErrDocumentTypeNotAccepted is returned when the chain lists document types and the document's is not one of them.
	ErrDocumentTypeNotAccepted = errors.New("chain does not accept the document type")
)

// DocumentTypeKey is the metadata field matched against a chain's document types.
const DocumentTypeKey = "document_type"

// Start binds request to chain, places it on the first applicable step and stores it.
// TotalSteps is a snapshot of the chain length. A request whose steps are all
// skipped by their conditions is approved right away.
func (p *Progressor) Start(ctx context.Context, request *models.ApprovalRequest, chain *models.ApprovalChain) (Result, error) {
	ctx, span := otelhelper.StartSpan(ctx, p.Tracer, "workflow.start",
		attribute.String(otelhelper.ChainIDKey, chain.ID))
	defer span.End()

	if !chain.Usable() {
		return Result{}, fmt.Errorf("%w: %s", ErrChainUnusable, chain.ID)
	}

	if len(chain.DocumentTypes) > 0 {
		documentType := p.documentType(ctx, request)
		if !chain.AppliesTo(documentType) {
			return Result{}, fmt.Errorf("%w: chain %s, document type %q", ErrDocumentTypeNotAccepted, chain.ID, documentType)
		}
	}

	now := p.now().UTC()

	request.ChainID = chain.ID
	request.TotalSteps = len(chain.Steps)
	request.CreatedAt = now
	request.UpdatedAt = now

	if request.Priority == "" {
		request.Priority = models.PriorityMedium
	}

	first, skipped := p.nextStep(ctx, request, chain, 0)

	outcome := OutcomePending
	if first == nil {
		request.Status = models.RequestStatusApproved
		request.CurrentStep = request.TotalSteps
		request.CompletedAt = &now
		outcome = OutcomeApproved
	} else {
		assign(request, first, now)
	}

	err := p.Requests.Create(ctx, request)
	if err != nil {
		otelhelper.SetError(span, err)

		return Result{}, err
	}

	span.SetAttributes(attribute.String(otelhelper.RequestIDKey, request.ID))

	p.Logger.InfoContext(ctx, "Request started",
		"request_id", request.ID,
		"chain_id", chain.ID,
		"step", request.CurrentStep,
		"status", request.Status)

	result := Result{Outcome: outcome, Request: request, Skipped: skipped}

	p.Metrics.Transition(string(request.Status))

	result.Warnings = p.Record(ctx, protocol.AuditEvent{
		Type:      events.RequestCreated,
		RequestID: request.ID,
		ChainID:   chain.ID,
		ActorID:   request.RequesterID,
		ToStatus:  string(request.Status),
		Step:      request.CurrentStep,
		Timestamp: now,
	})

	if outcome == OutcomeApproved {
		if p.SideEffects != nil {
			if w, failed := p.dispatch(ctx, request); failed {
				result.Warnings = append(result.Warnings, w)
			}
		}

		result.Warnings = append(result.Warnings, p.Announce(ctx, []string{request.RequesterID}, events.RequestApproved, request)...)

		return result, nil
	}

	result.Warnings = append(result.Warnings, p.Announce(ctx, request.AssignedTo, events.RequestCreated, request)...)

	return result, nil
}

// documentType reads the type from the document store, then from the request metadata.
func (p *Progressor) documentType(ctx context.Context, request *models.ApprovalRequest) string {
	for _, metadata := range []map[string]any{p.documentMetadata(ctx, request), request.Metadata} {
		if documentType, ok := metadata[DocumentTypeKey].(string); ok && documentType != "" {
			return documentType
		}
	}

	return ""
}
