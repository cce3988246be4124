// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/dukex/approvals/pkg/models"
	"github.com/dukex/approvals/pkg/persistence/file"
	"github.com/google/uuid"
)

// CreateTestStep creates a step with a single approver and "any" consensus.
func CreateTestStep(number int, overrides ...func(*models.ApprovalStep)) *models.ApprovalStep {
	step := &models.ApprovalStep{
		ID:         uuid.New().String(),
		StepNumber: number,
		Name:       fmt.Sprintf("Step %d", number),
		Approvers:  []string{fmt.Sprintf("approver-%d", number)},
		Consensus:  models.ConsensusAny,
	}

	for _, override := range overrides {
		override(step)
	}

	return step
}

// WithApprovers sets the step approvers and consensus policy.
func WithApprovers(consensus models.ConsensusType, approvers ...string) func(*models.ApprovalStep) {
	return func(s *models.ApprovalStep) {
		s.Consensus = consensus
		s.Approvers = approvers
	}
}

// WithTimeoutDays sets the step timeout.
func WithTimeoutDays(days int) func(*models.ApprovalStep) {
	return func(s *models.ApprovalStep) {
		s.TimeoutDays = days
	}
}

// WithEscalationChain sets the backup approvers of the step.
func WithEscalationChain(approvers ...string) func(*models.ApprovalStep) {
	return func(s *models.ApprovalStep) {
		s.EscalationChain = approvers
	}
}

// WithStepConditions sets the conditions a document must match for the step to apply.
func WithStepConditions(set models.ConditionSet) func(*models.ApprovalStep) {
	return func(s *models.ApprovalStep) {
		s.Conditions = set
	}
}

// CreateTestChain creates an active chain owning steps.
func CreateTestChain(steps ...*models.ApprovalStep) *models.ApprovalChain {
	chain := &models.ApprovalChain{
		ID:     uuid.New().String(),
		Name:   "Test Chain",
		Active: true,
		Steps:  steps,
	}

	for _, step := range steps {
		step.ChainID = chain.ID
	}

	return chain
}

// CreateTestRequest creates a pending request on the first step of chain.
func CreateTestRequest(chain *models.ApprovalChain, overrides ...func(*models.ApprovalRequest)) *models.ApprovalRequest {
	request := &models.ApprovalRequest{
		DocumentID:  uuid.New().String(),
		ChainID:     chain.ID,
		RequesterID: "requester",
		Status:      models.RequestStatusPending,
		Priority:    models.PriorityMedium,
		CurrentStep: 1,
		TotalSteps:  len(chain.Steps),
	}

	if step, ok := chain.Step(1); ok {
		request.AssignedTo = append([]string(nil), step.Approvers...)
	}

	for _, override := range overrides {
		override(request)
	}

	return request
}

// WithMetadata sets the request metadata.
func WithMetadata(metadata map[string]any) func(*models.ApprovalRequest) {
	return func(r *models.ApprovalRequest) {
		r.Metadata = metadata
	}
}

// WithDocument sets the request document.
func WithDocument(documentID string) func(*models.ApprovalRequest) {
	return func(r *models.ApprovalRequest) {
		r.DocumentID = documentID
	}
}

// NewFilePersistence returns a file persistence rooted in a temporary directory.
func NewFilePersistence(t *testing.T) *file.Persistence {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	if err := p.HealthCheck(context.Background()); err != nil {
		t.Fatalf("failed to prepare file persistence: %v", err)
	}

	return p
}

// Record appends an action against the request's current step.
func Record(t *testing.T, p *file.Persistence, request *models.ApprovalRequest, userID string, action models.ActionType) {
	t.Helper()

	err := p.ActionRepository().Append(context.Background(), &models.ApprovalAction{
		RequestID:  request.ID,
		UserID:     userID,
		Action:     action,
		StepNumber: request.CurrentStep,
	})
	if err != nil {
		t.Fatalf("failed to record %s by %s: %v", action, userID, err)
	}
}
