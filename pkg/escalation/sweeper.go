// Package escalation escalates pending approval requests whose step deadline has passed.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dukex/approvals/pkg/events"
	"github.com/dukex/approvals/pkg/lock"
	"github.com/dukex/approvals/pkg/metrics"
	"github.com/dukex/approvals/pkg/models"
	"github.com/dukex/approvals/pkg/otelhelper"
	"github.com/dukex/approvals/pkg/persistence"
	"github.com/dukex/approvals/pkg/protocol"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultSchedule = "@every 5m"
	DefaultLockTTL  = 4 * time.Minute

	lockKey = "escalation-sweep"
)

var ErrAlreadyStarted = errors.New("sweeper already started")

// Report summarizes one sweep.
type Report struct {
	Candidates int      `json:"candidates"`
	Escalated  []string `json:"escalated"`
	Conflicts  int      `json:"conflicts"`
	Failed     int      `json:"failed"`
	// Skipped is set when another instance held the sweep lock.
	Skipped bool `json:"skipped"`
}

// Dependencies of a Sweeper. Notifier, Audit, Locker, Metrics and Tracer are optional.
type Dependencies struct {
	Requests persistence.RequestRepository
	Chains   persistence.ChainRepository
	Notifier protocol.Notifier
	Audit    protocol.AuditSink
	Locker   lock.Locker
	Metrics  *metrics.Collectors
	Tracer   trace.Tracer
	Logger   *slog.Logger
}

type Sweeper struct {
	Dependencies

	schedule string
	lockTTL  time.Duration
	now      func() time.Time

	group singleflight.Group

	mu   sync.Mutex
	cron *cron.Cron
}

// NewSweeper creates a sweeper running on schedule, a robfig/cron spec such as "@every 5m".
func NewSweeper(deps Dependencies, schedule string) *Sweeper {
	if schedule == "" {
		schedule = DefaultSchedule
	}

	if deps.Metrics == nil {
		deps.Metrics = metrics.Discard()
	}

	if deps.Tracer == nil {
		deps.Tracer = otelhelper.NoopTracer()
	}

	deps.Logger = deps.Logger.With("module", "escalation")

	return &Sweeper{
		Dependencies: deps,
		schedule:     schedule,
		lockTTL:      DefaultLockTTL,
		now:          time.Now,
	}
}

// Start runs Sweep on the schedule until ctx is done or Stop is called.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return ErrAlreadyStarted
	}

	cronLogger := cron.PrintfLogger(slog.NewLogLogger(s.Logger.Handler(), slog.LevelWarn))

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cronLogger),
		cron.Recover(cronLogger),
	))

	_, err := s.cron.AddFunc(s.schedule, func() {
		report, err := s.Sweep(ctx)
		if err != nil {
			s.Logger.ErrorContext(ctx, "Escalation sweep failed", "error", err)

			return
		}

		s.Logger.InfoContext(ctx, "Escalation sweep finished",
			"candidates", report.Candidates,
			"escalated", len(report.Escalated),
			"conflicts", report.Conflicts,
			"failed", report.Failed,
			"skipped", report.Skipped)
	})
	if err != nil {
		s.cron = nil

		return fmt.Errorf("invalid escalation schedule '%s': %w", s.schedule, err)
	}

	s.cron.Start()
	s.Logger.InfoContext(ctx, "Escalation sweeper started", "schedule", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// Stop stops scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c := s.cron
	s.mu.Unlock()

	if c == nil {
		return
	}

	<-c.Stop().Done()
}

// Sweep escalates every overdue request once. Concurrent calls in the process
// share a single run; with a Locker, only one instance sweeps at a time.
func (s *Sweeper) Sweep(ctx context.Context) (Report, error) {
	v, err, _ := s.group.Do(lockKey, func() (any, error) {
		return s.sweep(ctx)
	})
	if err != nil {
		return Report{}, err
	}

	return v.(Report), nil
}

func (s *Sweeper) sweep(ctx context.Context) (Report, error) {
	ctx, span := otelhelper.StartSpan(ctx, s.Tracer, "escalation.sweep")
	defer span.End()

	started := time.Now()
	defer func() { s.Metrics.SweepDuration.Observe(time.Since(started).Seconds()) }()

	if s.Locker != nil {
		release, ok, err := s.Locker.Acquire(ctx, lockKey, s.lockTTL)
		if err != nil {
			otelhelper.SetError(span, err)

			return Report{}, err
		}

		if !ok {
			s.Logger.DebugContext(ctx, "Another instance is sweeping")

			return Report{Skipped: true}, nil
		}

		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.Logger.WarnContext(ctx, "Failed to release sweep lock", "error", err)
			}
		}()
	}

	now := s.now().UTC()

	candidates, err := s.Requests.Overdue(ctx, now)
	if err != nil {
		otelhelper.SetError(span, err)

		return Report{}, fmt.Errorf("failed to select overdue requests: %w", err)
	}

	report := Report{Candidates: len(candidates), Escalated: []string{}}

	for _, request := range candidates {
		err := s.escalate(ctx, request, now)

		switch {
		case err == nil:
			report.Escalated = append(report.Escalated, request.ID)
		case persistence.IsConcurrencyConflict(err):
			report.Conflicts++

			s.Logger.InfoContext(ctx, "Request changed during sweep, skipped", "request_id", request.ID)
		default:
			report.Failed++

			s.Logger.ErrorContext(ctx, "Failed to escalate request", "request_id", request.ID, "error", err)
		}
	}

	span.SetAttributes(
		attribute.Int(otelhelper.SweepCandidates, report.Candidates),
		attribute.Int(otelhelper.SweepEscalated, len(report.Escalated)),
	)

	return report, nil
}

// escalate moves one request to escalated with a system escalate action, and adds
// the current step's backup approvers to its assignees.
func (s *Sweeper) escalate(ctx context.Context, request *models.ApprovalRequest, now time.Time) error {
	next := request.Clone()
	next.Status = models.RequestStatusEscalated
	next.EscalationDate = &now
	next.UpdatedAt = now

	backups := s.backupApprovers(ctx, request)
	for _, approver := range backups {
		if !next.IsAssigned(approver) {
			next.AssignedTo = append(next.AssignedTo, approver)
		}
	}

	action := &models.ApprovalAction{
		RequestID:  request.ID,
		UserID:     models.SystemActor,
		Action:     models.ActionEscalate,
		Comments:   fmt.Sprintf("Automatically escalated: deadline %s exceeded", request.Deadline.UTC().Format(time.RFC3339)),
		StepNumber: request.CurrentStep,
		CreatedAt:  now,
	}

	if len(backups) > 0 {
		action.Annotations = map[string]any{"escalation_chain": backups}
	}

	err := s.Requests.Update(ctx, next, action)
	if err != nil {
		return err
	}

	s.Logger.InfoContext(ctx, "Request escalated",
		"request_id", next.ID,
		"chain_id", next.ChainID,
		"step", next.CurrentStep,
		"deadline", request.Deadline)

	s.Metrics.Escalations.Inc()
	s.Metrics.Transition(string(next.Status))

	s.announce(ctx, request.Status, next)

	return nil
}

func (s *Sweeper) backupApprovers(ctx context.Context, request *models.ApprovalRequest) []string {
	chain, err := s.Chains.GetByID(ctx, request.ChainID)
	if err != nil {
		s.Logger.WarnContext(ctx, "Failed to load chain, escalating without backup approvers",
			"request_id", request.ID,
			"chain_id", request.ChainID,
			"error", err)

		return nil
	}

	step, ok := chain.Step(request.CurrentStep)
	if !ok {
		return nil
	}

	return slices.Clone(step.EscalationChain)
}

func (s *Sweeper) announce(ctx context.Context, from models.RequestStatus, request *models.ApprovalRequest) {
	if s.Audit != nil {
		err := s.Audit.RecordEvent(ctx, protocol.AuditEvent{
			Type:       events.RequestEscalated,
			RequestID:  request.ID,
			ChainID:    request.ChainID,
			ActorID:    models.SystemActor,
			FromStatus: string(from),
			ToStatus:   string(request.Status),
			Step:       request.CurrentStep,
			Timestamp:  request.UpdatedAt,
		})
		if err != nil {
			s.Logger.WarnContext(ctx, "Failed to record audit event", "request_id", request.ID, "error", err)
		}
	}

	if s.Notifier != nil {
		recipients := append(slices.Clone(request.AssignedTo), request.RequesterID)

		err := s.Notifier.Notify(ctx, recipients, events.RequestEscalated, map[string]any{
			"request_id":      request.ID,
			"document_id":     request.DocumentID,
			"chain_id":        request.ChainID,
			"current_step":    request.CurrentStep,
			"escalation_date": request.EscalationDate,
		})
		if err != nil {
			s.Logger.WarnContext(ctx, "Failed to notify escalation", "request_id", request.ID, "error", err)
		}
	}
}
