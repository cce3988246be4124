// Package workflow drives approval requests through the steps of their chain.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dukex/approvals/pkg/conditions"
	"github.com/dukex/approvals/pkg/consensus"
	"github.com/dukex/approvals/pkg/events"
	"github.com/dukex/approvals/pkg/metrics"
	"github.com/dukex/approvals/pkg/models"
	"github.com/dukex/approvals/pkg/otelhelper"
	"github.com/dukex/approvals/pkg/persistence"
	"github.com/dukex/approvals/pkg/protocol"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxRetries bounds how often a progression is re-run after losing a write race.
const DefaultMaxRetries = 3

var ErrStepNotFound = errors.New("step not found in chain")

// Outcome is what a single progression did to the request.
type Outcome string

const (
	OutcomeNoop     Outcome = "noop"
	OutcomePending  Outcome = "pending"
	OutcomeAdvanced Outcome = "advanced"
	OutcomeApproved Outcome = "approved"
	OutcomeRejected Outcome = "rejected"
)

// Transitioned reports whether the request changed state.
func (o Outcome) Transitioned() bool {
	return o == OutcomeAdvanced || o == OutcomeApproved || o == OutcomeRejected
}

// Result of a progression. Request is the state after the progression.
type Result struct {
	Outcome  Outcome                 `json:"outcome"`
	Reason   string                  `json:"reason,omitempty"`
	Request  *models.ApprovalRequest `json:"request"`
	Skipped  []int                   `json:"skipped_steps,omitempty"`
	Warnings []DispatchWarning       `json:"warnings,omitempty"`
}

// SideEffects runs the deferred action of an approved request.
type SideEffects interface {
	Dispatch(ctx context.Context, request *models.ApprovalRequest) (bool, error)
}

// Dependencies of a Progressor. Documents, SideEffects, Notifier, Audit, Metrics
// and Tracer are optional.
type Dependencies struct {
	Requests   persistence.RequestRepository
	Actions    persistence.ActionRepository
	Chains     persistence.ChainRepository
	Documents  protocol.DocumentStore
	Conditions *conditions.Evaluator

	SideEffects SideEffects
	Notifier    protocol.Notifier
	Audit       protocol.AuditSink
	Metrics     *metrics.Collectors
	Tracer      trace.Tracer
	Logger      *slog.Logger
}

type Progressor struct {
	Dependencies

	MaxRetries int
	now        func() time.Time
}

func NewProgressor(deps Dependencies) *Progressor {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Discard()
	}

	if deps.Tracer == nil {
		deps.Tracer = otelhelper.NoopTracer()
	}

	deps.Logger = deps.Logger.With("module", "workflow")

	return &Progressor{
		Dependencies: deps,
		MaxRetries:   DefaultMaxRetries,
		now:          time.Now,
	}
}

// Progress evaluates the current step of the request and applies the outcome.
// Halted requests are left alone. When another writer updates the request
// concurrently the whole evaluation is repeated, at most MaxRetries times.
func (p *Progressor) Progress(ctx context.Context, requestID string) (Result, error) {
	ctx, span := otelhelper.StartSpan(ctx, p.Tracer, "workflow.progress",
		attribute.String(otelhelper.RequestIDKey, requestID))
	defer span.End()

	logger := p.Logger.With("request_id", requestID)

	for attempt := 0; ; attempt++ {
		t, err := p.progress(ctx, requestID)
		if err == nil {
			span.SetAttributes(attribute.String(otelhelper.OutcomeKey, string(t.result.Outcome)))

			if t.result.Outcome.Transitioned() {
				t.result.Warnings = p.afterCommit(ctx, t)
			}

			return t.result, nil
		}

		if !persistence.IsConcurrencyConflict(err) || attempt >= p.MaxRetries {
			otelhelper.SetError(span, err)

			return Result{}, err
		}

		logger.DebugContext(ctx, "Lost update race, retrying progression", "attempt", attempt+1)
	}
}

// transition is a committed change plus what is needed to announce it.
type transition struct {
	result     Result
	chain      *models.ApprovalChain
	fromStatus models.RequestStatus
	fromStep   int
}

func (p *Progressor) progress(ctx context.Context, requestID string) (transition, error) {
	request, err := p.Requests.GetByID(ctx, requestID)
	if err != nil {
		return transition{}, err
	}

	if request.Status.IsHalted() {
		return transition{result: Result{Outcome: OutcomeNoop, Reason: string(request.Status), Request: request}}, nil
	}

	chain, err := p.Chains.GetByID(ctx, request.ChainID)
	if err != nil {
		return transition{}, err
	}

	step, ok := chain.Step(request.CurrentStep)
	if !ok {
		return transition{}, fmt.Errorf("%w: chain %s step %d", ErrStepNotFound, chain.ID, request.CurrentStep)
	}

	actions, err := p.Actions.ListByRequest(ctx, request.ID)
	if err != nil {
		return transition{}, err
	}

	outcome := consensus.Evaluate(step, actions)

	t := transition{chain: chain, fromStatus: request.Status, fromStep: request.CurrentStep}
	now := p.now().UTC()
	next := request.Clone()
	next.UpdatedAt = now

	switch {
	case outcome.IsPending():
		t.result = Result{Outcome: OutcomePending, Reason: outcome.Reason, Request: request}

		return t, nil

	case outcome.IsRejected():
		next.Status = models.RequestStatusRejected
		next.CompletedAt = &now
		t.result = Result{Outcome: OutcomeRejected, Reason: outcome.Reason}

	default:
		following, skipped := p.nextStep(ctx, request, chain, request.CurrentStep)
		t.result.Skipped = skipped

		if following == nil {
			next.Status = models.RequestStatusApproved
			next.CompletedAt = &now
			t.result.Outcome = OutcomeApproved
		} else {
			assign(next, following, now)
			t.result.Outcome = OutcomeAdvanced
			t.result.Reason = fmt.Sprintf("advanced to step %d", following.StepNumber)
		}
	}

	err = p.Requests.Update(ctx, next)
	if err != nil {
		return transition{}, err
	}

	t.result.Request = next

	p.Logger.InfoContext(ctx, "Request progressed",
		"request_id", next.ID,
		"outcome", t.result.Outcome,
		"step", next.CurrentStep,
		"status", next.Status)

	return t, nil
}

// nextStep returns the first step after `after` whose conditions match the
// document, or nil when none remains within the request's step snapshot.
func (p *Progressor) nextStep(ctx context.Context, request *models.ApprovalRequest, chain *models.ApprovalChain, after int) (*models.ApprovalStep, []int) {
	var (
		skipped  []int
		metadata map[string]any
		loaded   bool
	)

	for _, step := range chain.SortedSteps() {
		if step.StepNumber <= after || step.StepNumber > request.TotalSteps {
			continue
		}

		if len(step.Conditions) == 0 || p.Conditions == nil {
			return step, skipped
		}

		if !loaded {
			metadata, loaded = p.documentMetadata(ctx, request), true
		}

		if metadata == nil || p.Conditions.Match(metadata, step.Conditions) {
			return step, skipped
		}

		skipped = append(skipped, step.StepNumber)
	}

	return nil, skipped
}

// documentMetadata returns nil when the metadata cannot be read, which disables skipping.
func (p *Progressor) documentMetadata(ctx context.Context, request *models.ApprovalRequest) map[string]any {
	if p.Documents == nil {
		return request.Metadata
	}

	metadata, err := p.Documents.GetDocumentMetadata(ctx, request.DocumentID)
	if err != nil {
		p.Logger.WarnContext(ctx, "Failed to read document metadata, step conditions ignored",
			"request_id", request.ID,
			"document_id", request.DocumentID,
			"error", err)

		return nil
	}

	return metadata
}

// assign puts the request on step and restarts its clock.
func assign(request *models.ApprovalRequest, step *models.ApprovalStep, now time.Time) {
	request.CurrentStep = step.StepNumber
	request.AssignedTo = slices.Clone(step.Approvers)
	request.Status = models.RequestStatusPending
	request.EscalationDate = nil
	request.Deadline = nil

	if timeout := step.Timeout(); timeout > 0 {
		deadline := now.Add(timeout)
		request.Deadline = &deadline
	}
}

func eventName(outcome Outcome) string {
	switch outcome {
	case OutcomeApproved:
		return events.RequestApproved
	case OutcomeRejected:
		return events.RequestRejected
	default:
		return events.RequestAdvanced
	}
}
