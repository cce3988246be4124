package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/dukex/approvals/pkg/events"
	"github.com/dukex/approvals/pkg/metrics"
	"github.com/dukex/approvals/pkg/models"
	"github.com/dukex/approvals/pkg/permissions"
	"github.com/dukex/approvals/pkg/persistence"
	"github.com/dukex/approvals/pkg/protocol"
	"github.com/dukex/approvals/pkg/routing"
	"github.com/dukex/approvals/pkg/workflow"
)

// CreateRequestInput starts a request on an explicit chain.
type CreateRequestInput struct {
	DocumentID  string          `json:"document_id"  validate:"required"`
	ChainID     string          `json:"chain_id"     validate:"required"`
	RequesterID string          `json:"requester_id"`
	Priority    models.Priority `json:"priority"`
	Metadata    map[string]any  `json:"metadata"`
}

// SubmitInput starts a request on the chain chosen by routing.
type SubmitInput struct {
	DocumentID  string          `json:"document_id"  validate:"required"`
	RequesterID string          `json:"requester_id"`
	Priority    models.Priority `json:"priority"`
	Metadata    map[string]any  `json:"metadata"`
}

// SubmitResult tells which rule routed the document. Rule is nil when the default chain was used.
type SubmitResult struct {
	workflow.Result

	Rule *models.RoutingRule `json:"rule,omitempty"`
}

// ActInput is a user action on a request.
type ActInput struct {
	Action      models.ActionType `json:"action"       validate:"required"`
	Comments    string            `json:"comments"`
	Annotations map[string]any    `json:"annotations"`
	DelegateTo  string            `json:"delegate_to"`
}

// ActResult is the recorded action and, for approvals and rejections, the progression it caused.
type ActResult struct {
	Action   *models.ApprovalAction  `json:"action"`
	Progress *workflow.Result        `json:"progress,omitempty"`
	Request  *models.ApprovalRequest `json:"request"`
}

// RequestsDependencies wires the request service.
type RequestsDependencies struct {
	Persistence    persistence.Persistence
	Router         *routing.Engine
	Guard          *permissions.Guard
	Progressor     *workflow.Progressor
	DefaultChainID string
	// Documents, when set, records metadata submitted for unknown documents.
	Documents protocol.DocumentRegistry
	Logger    *slog.Logger
}

// Requests runs approval requests: creation, user actions and administrative transitions.
type Requests struct {
	requests persistence.RequestRepository
	actions  persistence.ActionRepository
	chains   persistence.ChainRepository

	router         *routing.Engine
	guard          *permissions.Guard
	progressor     *workflow.Progressor
	documents      protocol.DocumentRegistry
	defaultChainID string
	logger         *slog.Logger
	now            func() time.Time
}

func NewRequests(deps RequestsDependencies) *Requests {
	return &Requests{
		requests:       deps.Persistence.RequestRepository(),
		actions:        deps.Persistence.ActionRepository(),
		chains:         deps.Persistence.ChainRepository(),
		router:         deps.Router,
		guard:          deps.Guard,
		progressor:     deps.Progressor,
		documents:      deps.Documents,
		defaultChainID: deps.DefaultChainID,
		logger:         deps.Logger.With("module", "request_service"),
		now:            time.Now,
	}
}

// Create starts a request for a document on the given chain.
func (r *Requests) Create(ctx context.Context, input CreateRequestInput) (workflow.Result, error) {
	if input.DocumentID == "" || input.ChainID == "" || input.RequesterID == "" {
		return workflow.Result{}, invalid("CreateRequest", "document_id, chain_id and requester_id are required")
	}

	if input.Priority != "" && !input.Priority.IsValid() {
		return workflow.Result{}, invalid("CreateRequest", fmt.Sprintf("unknown priority %q", input.Priority))
	}

	chain, err := r.chains.GetByID(ctx, input.ChainID)
	if err != nil {
		return workflow.Result{}, err
	}

	return r.progressor.Start(ctx, &models.ApprovalRequest{
		DocumentID:  input.DocumentID,
		RequesterID: input.RequesterID,
		Priority:    input.Priority,
		Metadata:    input.Metadata,
	}, chain)
}

// Submit routes the document and starts a request on the selected chain, falling
// back to the default chain when no rule matches. A document unknown to the
// document store is routed on the submitted metadata, which is then registered.
func (r *Requests) Submit(ctx context.Context, input SubmitInput) (SubmitResult, error) {
	if input.DocumentID == "" {
		return SubmitResult{}, invalid("SubmitDocument", "document_id is required")
	}

	decision, _, err := r.router.RouteDocument(ctx, input.DocumentID)
	if errors.Is(err, protocol.ErrDocumentNotFound) && input.Metadata != nil {
		decision, err = r.routeSubmitted(ctx, input)
	}

	if err != nil {
		return SubmitResult{}, err
	}

	chainID := decision.ChainID
	if !decision.Matched {
		if r.defaultChainID == "" {
			return SubmitResult{}, fmt.Errorf("%w: document %s", ErrNoRoute, input.DocumentID)
		}

		chainID = r.defaultChainID
	}

	result, err := r.Create(ctx, CreateRequestInput{
		DocumentID:  input.DocumentID,
		ChainID:     chainID,
		RequesterID: input.RequesterID,
		Priority:    input.Priority,
		Metadata:    input.Metadata,
	})
	if err != nil {
		return SubmitResult{}, err
	}

	r.logger.InfoContext(ctx, "Document routed",
		"document_id", input.DocumentID,
		"chain_id", chainID,
		"matched", decision.Matched)

	return SubmitResult{Result: result, Rule: decision.Rule}, nil
}

func (r *Requests) routeSubmitted(ctx context.Context, input SubmitInput) (routing.Decision, error) {
	if r.documents != nil {
		err := r.documents.RegisterDocument(ctx, input.DocumentID, input.Metadata)
		if err != nil {
			return routing.Decision{}, fmt.Errorf("failed to register document %s: %w", input.DocumentID, err)
		}
	}

	r.logger.DebugContext(ctx, "Routing on submitted metadata", "document_id", input.DocumentID)

	return r.router.Route(ctx, input.Metadata)
}

// Act records a user's action on a request. Approvals and rejections then run the
// progression; request_changes, escalate and delegate change the request directly.
func (r *Requests) Act(ctx context.Context, userID, requestID string, input ActInput) (ActResult, error) {
	if !input.Action.IsValid() {
		return ActResult{}, invalid("Act", fmt.Sprintf("unknown action %q", input.Action))
	}

	for attempt := 0; ; attempt++ {
		result, err := r.act(ctx, userID, requestID, input)
		if err == nil {
			return result, nil
		}

		if !persistence.IsConcurrencyConflict(err) || attempt >= workflow.DefaultMaxRetries {
			return ActResult{}, err
		}
	}
}

func (r *Requests) act(ctx context.Context, userID, requestID string, input ActInput) (ActResult, error) {
	request, err := r.requests.GetByID(ctx, requestID)
	if err != nil {
		return ActResult{}, err
	}

	verdict := r.guard.Authorize(ctx, userID, request, input.Action)
	if !verdict.Allowed {
		return ActResult{}, denied("Act", verdict.Reason)
	}

	now := r.now().UTC()

	action := &models.ApprovalAction{
		RequestID:   request.ID,
		UserID:      userID,
		Action:      input.Action,
		Comments:    input.Comments,
		Annotations: input.Annotations,
		StepNumber:  request.CurrentStep,
		CreatedAt:   now,
	}

	next := request.Clone()
	next.UpdatedAt = now

	var event string

	switch input.Action {
	case models.ActionRequestChanges:
		if !request.Status.IsOpen() {
			return ActResult{}, invalidState("Act", fmt.Sprintf("cannot request changes on a %s request", request.Status))
		}

		next.Status = models.RequestStatusChangesRequested
		event = events.RequestChangesRequested

	case models.ActionEscalate:
		if !request.Status.IsOpen() {
			return ActResult{}, invalidState("Act", fmt.Sprintf("cannot escalate a %s request", request.Status))
		}

		next.Status = models.RequestStatusEscalated
		next.EscalationDate = &now
		event = events.RequestEscalated

	case models.ActionDelegate:
		if err := delegate(next, userID, input.DelegateTo); err != nil {
			return ActResult{}, err
		}

		action.DelegateTo = input.DelegateTo
		event = events.RequestDelegated
	}

	err = r.requests.Update(ctx, next, action)
	if err != nil {
		return ActResult{}, err
	}

	r.logger.InfoContext(ctx, "Action recorded",
		"request_id", next.ID,
		"user_id", userID,
		"action", input.Action,
		"step", action.StepNumber)

	result := ActResult{Action: action, Request: next}

	if event != "" {
		r.announce(ctx, event, userID, request.Status, next, r.recipients(input.Action, next))
	}

	if input.Action != models.ActionApprove && input.Action != models.ActionReject {
		return result, nil
	}

	progress, err := r.progressor.Progress(ctx, next.ID)
	if err != nil {
		// The action is stored; the next action or resume will progress the request.
		r.logger.ErrorContext(ctx, "Progression failed after action", "request_id", next.ID, "error", err)

		return result, nil
	}

	result.Progress = &progress
	result.Request = progress.Request

	return result, nil
}

func delegate(request *models.ApprovalRequest, from, to string) error {
	to = strings.TrimSpace(to)
	if to == "" || to == from {
		return invalid("Delegate", "delegate_to must name another user")
	}

	i := slices.Index(request.AssignedTo, from)
	if i < 0 {
		return invalid("Delegate", "only an assigned approver can delegate")
	}

	if request.IsAssigned(to) {
		return invalid("Delegate", fmt.Sprintf("%s is already assigned to this step", to))
	}

	request.AssignedTo[i] = to

	return nil
}

func (r *Requests) recipients(action models.ActionType, request *models.ApprovalRequest) []string {
	if action == models.ActionRequestChanges {
		return []string{request.RequesterID}
	}

	return append(slices.Clone(request.AssignedTo), request.RequesterID)
}

// Cancel moves an open or halted request to cancelled. Only the requester and the admin may cancel.
func (r *Requests) Cancel(ctx context.Context, userID, requestID, reason string) (*models.ApprovalRequest, error) {
	return r.transition(ctx, "Cancel", requestID, func(request *models.ApprovalRequest) (string, error) {
		if request.RequesterID != userID && !r.guard.IsAdmin(ctx, userID) {
			return "", denied("Cancel", "only the requester or an admin can cancel")
		}

		if request.Status.IsTerminal() {
			return "", invalidState("Cancel", fmt.Sprintf("request is %s", request.Status))
		}

		now := r.now().UTC()
		request.Status = models.RequestStatusCancelled
		request.CompletedAt = &now

		if reason != "" {
			if request.Metadata == nil {
				request.Metadata = map[string]any{}
			}

			request.Metadata["cancel_reason"] = reason
		}

		return events.RequestCancelled, nil
	}, userID)
}

// Resume returns an escalated or changes_requested request to pending on its
// current step with a fresh deadline, then progresses it so approvals recorded in
// the meantime take effect. Admin only.
func (r *Requests) Resume(ctx context.Context, userID, requestID string) (*models.ApprovalRequest, error) {
	resumed, err := r.transition(ctx, "Resume", requestID, func(request *models.ApprovalRequest) (string, error) {
		if !r.guard.IsAdmin(ctx, userID) {
			return "", denied("Resume", "only an admin can resume a request")
		}

		if request.Status != models.RequestStatusEscalated && request.Status != models.RequestStatusChangesRequested {
			return "", invalidState("Resume", fmt.Sprintf("request is %s", request.Status))
		}

		chain, err := r.chains.GetByID(ctx, request.ChainID)
		if err != nil {
			return "", err
		}

		request.Status = models.RequestStatusPending
		request.Deadline = nil

		if step, ok := chain.Step(request.CurrentStep); ok {
			if timeout := step.Timeout(); timeout > 0 {
				deadline := r.now().UTC().Add(timeout)
				request.Deadline = &deadline
			}
		}

		return events.RequestResumed, nil
	}, userID)
	if err != nil {
		return nil, err
	}

	progress, err := r.progressor.Progress(ctx, resumed.ID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Progression failed after resume", "request_id", resumed.ID, "error", err)

		return resumed, nil
	}

	return progress.Request, nil
}

// transition applies change to a fresh copy of the request under the optimistic
// version check, retrying lost races.
func (r *Requests) transition(
	ctx context.Context,
	op, requestID string,
	change func(*models.ApprovalRequest) (string, error),
	actorID string,
) (*models.ApprovalRequest, error) {
	for attempt := 0; ; attempt++ {
		request, err := r.requests.GetByID(ctx, requestID)
		if err != nil {
			return nil, err
		}

		from := request.Status
		next := request.Clone()
		next.UpdatedAt = r.now().UTC()

		event, err := change(next)
		if err != nil {
			return nil, err
		}

		err = r.requests.Update(ctx, next)
		if err == nil {
			r.logger.InfoContext(ctx, "Request transitioned", "op", op, "request_id", next.ID, "status", next.Status)
			r.announce(ctx, event, actorID, from, next, append(slices.Clone(next.AssignedTo), next.RequesterID))

			return next, nil
		}

		if !errors.Is(err, persistence.ErrConcurrencyConflict) || attempt >= workflow.DefaultMaxRetries {
			return nil, err
		}
	}
}

func (r *Requests) announce(ctx context.Context, event, actorID string, from models.RequestStatus, request *models.ApprovalRequest, recipients []string) {
	r.progressor.Metrics.Transition(string(request.Status))

	r.progressor.Record(ctx, protocol.AuditEvent{
		Type:       event,
		RequestID:  request.ID,
		ChainID:    request.ChainID,
		ActorID:    actorID,
		FromStatus: string(from),
		ToStatus:   string(request.Status),
		Step:       request.CurrentStep,
		Timestamp:  request.UpdatedAt,
	})

	r.progressor.Announce(ctx, recipients, event, request)
}

// Get returns the request if the user may view it.
func (r *Requests) Get(ctx context.Context, userID, requestID string) (*models.ApprovalRequest, error) {
	request, err := r.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	verdict := r.guard.Authorize(ctx, userID, request, models.ActionView)
	if !verdict.Allowed {
		return nil, denied("GetRequest", verdict.Reason)
	}

	return request, nil
}

// List returns requests matching filter. Non-admin users only see their own
// requests and the ones assigned to them.
func (r *Requests) List(ctx context.Context, userID string, filter persistence.RequestFilter) ([]*models.ApprovalRequest, error) {
	if r.guard.IsAdmin(ctx, userID) {
		return r.requests.List(ctx, filter)
	}

	if filter.RequesterID != userID && filter.AssignedTo != userID {
		return nil, denied("ListRequests", "filter by requester_id or assigned_to of the current user")
	}

	return r.requests.List(ctx, filter)
}

// Actions returns the recorded actions of a request in order.
func (r *Requests) Actions(ctx context.Context, userID, requestID string) ([]*models.ApprovalAction, error) {
	if _, err := r.Get(ctx, userID, requestID); err != nil {
		return nil, err
	}

	return r.actions.ListByRequest(ctx, requestID)
}

// Metrics computes the reporting figures of a request.
func (r *Requests) Metrics(ctx context.Context, userID, requestID string) (metrics.RequestMetrics, error) {
	request, err := r.Get(ctx, userID, requestID)
	if err != nil {
		return metrics.RequestMetrics{}, err
	}

	actions, err := r.actions.ListByRequest(ctx, requestID)
	if err != nil {
		return metrics.RequestMetrics{}, err
	}

	return metrics.Calculate(request, actions, r.now().UTC()), nil
}
