package models

import (
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestStatus_Predicates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status   RequestStatus
		terminal bool
		halted   bool
		open     bool
	}{
		{RequestStatusPending, false, false, true},
		{RequestStatusInProgress, false, false, true},
		{RequestStatusApproved, true, true, false},
		{RequestStatusRejected, true, true, false},
		{RequestStatusCancelled, true, true, false},
		{RequestStatusEscalated, false, true, false},
		{RequestStatusChangesRequested, false, true, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
			assert.Equal(t, tt.halted, tt.status.IsHalted())
			assert.Equal(t, tt.open, tt.status.IsOpen())
		})
	}
}

func TestApprovalRequest_NeedsEscalation(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	deadline := now.Add(-time.Hour)
	before := deadline.Add(-time.Hour)
	after := deadline.Add(time.Minute)
	future := now.Add(time.Hour)

	tests := []struct {
		name      string
		request   ApprovalRequest
		escalates bool
	}{
		{"overdue", ApprovalRequest{Status: RequestStatusPending, Deadline: &deadline}, true},
		{"no deadline", ApprovalRequest{Status: RequestStatusPending}, false},
		{"deadline ahead", ApprovalRequest{Status: RequestStatusPending, Deadline: &future}, false},
		{"escalated before this deadline", ApprovalRequest{Status: RequestStatusPending, Deadline: &deadline, EscalationDate: &before}, true},
		{"escalated since this deadline", ApprovalRequest{Status: RequestStatusPending, Deadline: &deadline, EscalationDate: &after}, false},
		{"in progress", ApprovalRequest{Status: RequestStatusInProgress, Deadline: &deadline}, false},
		{"approved", ApprovalRequest{Status: RequestStatusApproved, Deadline: &deadline}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.escalates, tt.request.NeedsEscalation(now))
		})
	}
}

func TestApprovalRequest_CloneIsIndependent(t *testing.T) {
	t.Parallel()

	original := &ApprovalRequest{
		ID:         "req-1",
		AssignedTo: []string{"a", "b"},
		Metadata:   map[string]any{MetadataTypeKey: "document_checkout"},
		Version:    3,
	}

	clone := original.Clone()
	clone.AssignedTo[0] = "z"
	clone.Metadata["extra"] = true
	clone.Version++

	assert.Equal(t, []string{"a", "b"}, original.AssignedTo)
	assert.NotContains(t, original.Metadata, "extra")
	assert.Equal(t, int64(3), original.Version)
	assert.Equal(t, "document_checkout", clone.SideEffectType())
	assert.True(t, clone.IsAssigned("z"))
	assert.False(t, original.IsAssigned("z"))
}

func TestApprovalRequest_SideEffectType(t *testing.T) {
	t.Parallel()

	assert.Empty(t, (&ApprovalRequest{}).SideEffectType())
	assert.Empty(t, (&ApprovalRequest{Metadata: map[string]any{MetadataTypeKey: 42}}).SideEffectType())
	assert.Equal(t, "log", (&ApprovalRequest{Metadata: map[string]any{MetadataTypeKey: "log"}}).SideEffectType())
}

func TestApprovalChain_Helpers(t *testing.T) {
	t.Parallel()

	chain := &ApprovalChain{
		Active:        true,
		DocumentTypes: []string{"invoice"},
		Steps: []*ApprovalStep{
			{StepNumber: 2, Name: "Finance"},
			{StepNumber: 1, Name: "Manager", TimeoutDays: 2},
		},
	}

	sorted := chain.SortedSteps()
	require.Len(t, sorted, 2)
	assert.Equal(t, "Manager", sorted[0].Name)
	assert.Equal(t, "Finance", chain.Steps[0].Name, "SortedSteps does not reorder the chain")

	step, ok := chain.Step(1)
	require.True(t, ok)
	assert.Equal(t, 48*time.Hour, step.Timeout())

	_, ok = chain.Step(3)
	assert.False(t, ok)

	assert.True(t, chain.Usable())
	assert.True(t, chain.AppliesTo("invoice"))
	assert.False(t, chain.AppliesTo("memo"))

	disabled := time.Now()
	chain.DisabledAt = &disabled
	assert.False(t, chain.Usable())
}

func TestApprovalStep_Validation(t *testing.T) {
	t.Parallel()

	v := validator.New(validator.WithRequiredStructEnabled())

	valid := ApprovalStep{StepNumber: 1, Name: "Manager", Approvers: []string{"m"}, Consensus: ConsensusAny}
	require.NoError(t, v.Struct(valid))

	err := v.Struct(ApprovalStep{StepNumber: 1, Name: "Manager", Approvers: []string{""}, Consensus: ConsensusAny})
	require.Error(t, err)

	var validationErrors validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrors)
	assert.Equal(t, "Approvers[0]", validationErrors[0].Field())

	assert.True(t, ConsensusWeighted.IsValid())
	assert.False(t, ConsensusType("quorum").IsValid())
	assert.Len(t, ConsensusTypes(), 5)
}
