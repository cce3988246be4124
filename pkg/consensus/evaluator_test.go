package consensus

import (
	"testing"

	"github.com/dukex/approvals/pkg/models"
	"github.com/stretchr/testify/assert"
)

func act(user string, action models.ActionType) *models.ApprovalAction {
	return &models.ApprovalAction{UserID: user, Action: action, StepNumber: 1}
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	four := []string{"a", "b", "c", "d"}

	tests := []struct {
		name      string
		consensus models.ConsensusType
		approvers []string
		actions   []*models.ApprovalAction
		want      Decision
		reason    string
	}{
		{
			name: "any approves on first approval", consensus: models.ConsensusAny, approvers: []string{"a", "b"},
			actions: []*models.ApprovalAction{act("b", models.ActionApprove)},
			want:    DecisionApproved,
		},
		{
			name: "any pending without approvals", consensus: models.ConsensusAny, approvers: []string{"a", "b"},
			actions: []*models.ApprovalAction{act("a", models.ActionComment)},
			want:    DecisionPending, reason: "waiting_for_any",
		},
		{
			name: "all waits for everyone", consensus: models.ConsensusAll, approvers: []string{"a", "b"},
			actions: []*models.ApprovalAction{act("a", models.ActionApprove), act("a", models.ActionApprove)},
			want:    DecisionPending, reason: "waiting_for_all (1/2)",
		},
		{
			name: "all approves when covered", consensus: models.ConsensusAll, approvers: []string{"a", "b"},
			actions: []*models.ApprovalAction{act("a", models.ActionApprove), act("b", models.ActionApprove)},
			want:    DecisionApproved,
		},
		{
			name: "unanimous ignores outsiders", consensus: models.ConsensusUnanimous, approvers: []string{"a", "b"},
			actions: []*models.ApprovalAction{act("a", models.ActionApprove), act("admin", models.ActionApprove)},
			want:    DecisionPending, reason: "waiting_for_all (1/2)",
		},
		{
			name: "majority of four is not reached with two", consensus: models.ConsensusMajority, approvers: four,
			actions: []*models.ApprovalAction{act("a", models.ActionApprove), act("b", models.ActionApprove)},
			want:    DecisionPending, reason: "waiting_for_majority (2/3)",
		},
		{
			name: "majority of four is reached with three", consensus: models.ConsensusMajority, approvers: four,
			actions: []*models.ApprovalAction{
				act("a", models.ActionApprove), act("b", models.ActionApprove), act("c", models.ActionApprove),
			},
			want: DecisionApproved,
		},
		{
			name: "majority counts distinct approvers", consensus: models.ConsensusMajority, approvers: four,
			actions: []*models.ApprovalAction{
				act("a", models.ActionApprove), act("a", models.ActionApprove), act("a", models.ActionApprove),
			},
			want: DecisionPending, reason: "waiting_for_majority (1/3)",
		},
		{
			name: "weighted behaves as majority", consensus: models.ConsensusWeighted, approvers: []string{"a", "b", "c"},
			actions: []*models.ApprovalAction{act("a", models.ActionApprove), act("c", models.ActionApprove)},
			want:    DecisionApproved,
		},
		{
			name: "single reject overrides approvals", consensus: models.ConsensusAny, approvers: four,
			actions: []*models.ApprovalAction{
				act("a", models.ActionApprove), act("b", models.ActionApprove), act("c", models.ActionReject),
			},
			want: DecisionRejected, reason: "rejected_by c",
		},
		{
			name: "actions on other steps are ignored", consensus: models.ConsensusAny, approvers: []string{"a"},
			actions: []*models.ApprovalAction{{UserID: "a", Action: models.ActionApprove, StepNumber: 2}},
			want:    DecisionPending, reason: "waiting_for_any",
		},
		{
			name: "delegate fills the delegator's seat", consensus: models.ConsensusAll, approvers: []string{"a", "b"},
			actions: []*models.ApprovalAction{
				act("a", models.ActionApprove),
				{UserID: "b", Action: models.ActionDelegate, DelegateTo: "x", StepNumber: 1},
				act("x", models.ActionApprove),
			},
			want: DecisionApproved,
		},
		{
			name: "delegation by an outsider grants nothing", consensus: models.ConsensusAll, approvers: []string{"a"},
			actions: []*models.ApprovalAction{
				{UserID: "z", Action: models.ActionDelegate, DelegateTo: "x", StepNumber: 1},
				act("x", models.ActionApprove),
			},
			want: DecisionPending, reason: "waiting_for_all (0/1)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			step := &models.ApprovalStep{StepNumber: 1, Consensus: tt.consensus, Approvers: tt.approvers}
			outcome := Evaluate(step, tt.actions)

			assert.Equal(t, tt.want, outcome.Decision)
			assert.Equal(t, tt.reason, outcome.Reason)
		})
	}
}

func TestRequiredApprovals(t *testing.T) {
	t.Parallel()

	step := func(c models.ConsensusType, n int) *models.ApprovalStep {
		return &models.ApprovalStep{Consensus: c, Approvers: make([]string, n)}
	}

	assert.Equal(t, 1, RequiredApprovals(step(models.ConsensusAny, 5)))
	assert.Equal(t, 3, RequiredApprovals(step(models.ConsensusMajority, 4)))
	assert.Equal(t, 3, RequiredApprovals(step(models.ConsensusMajority, 5)))
	assert.Equal(t, 1, RequiredApprovals(step(models.ConsensusWeighted, 1)))
	assert.Equal(t, 4, RequiredApprovals(step(models.ConsensusAll, 4)))
	assert.Equal(t, 2, RequiredApprovals(step(models.ConsensusUnanimous, 2)))
}
