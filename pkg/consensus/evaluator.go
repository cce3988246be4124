// Package consensus decides whether an approval step is satisfied by the actions recorded against it.
package consensus

import (
	"fmt"

	"github.com/dukex/approvals/pkg/models"
)

// Decision is the outcome of evaluating one step.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
	DecisionPending  Decision = "pending"
)

// Outcome is the tagged result of Evaluate. Reason is set for pending and rejected outcomes.
type Outcome struct {
	Decision  Decision `json:"decision"`
	Reason    string   `json:"reason,omitempty"`
	Approvals int      `json:"approvals"`
	Required  int      `json:"required"`
}

func (o Outcome) IsApproved() bool { return o.Decision == DecisionApproved }
func (o Outcome) IsRejected() bool { return o.Decision == DecisionRejected }
func (o Outcome) IsPending() bool  { return o.Decision == DecisionPending }

// RequiredApprovals returns how many distinct approvals the step needs.
func RequiredApprovals(step *models.ApprovalStep) int {
	n := len(step.Approvers)

	switch step.Consensus {
	case models.ConsensusAny:
		return 1
	case models.ConsensusMajority, models.ConsensusWeighted:
		return n/2 + 1
	default:
		return n
	}
}

// Evaluate applies the step's consensus policy to actions. Only actions recorded
// against step.StepNumber count; a single reject overrides any number of approvals.
//
// A delegate action hands the delegator's seat to DelegateTo, so an approval by the
// delegate fills the delegator's seat. Approvals by users holding no seat count as
// their own vote for any and majority, never for all and unanimous.
// Weighted is evaluated as majority because per-approver weights are not modeled.
func Evaluate(step *models.ApprovalStep, actions []*models.ApprovalAction) Outcome {
	seats := make(map[string]string, len(step.Approvers))
	for _, approver := range step.Approvers {
		seats[approver] = approver
	}

	var rejectedBy string

	approved := make(map[string]bool)

	for _, action := range actions {
		if action.StepNumber != step.StepNumber {
			continue
		}

		switch action.Action {
		case models.ActionReject:
			if rejectedBy == "" {
				rejectedBy = action.UserID
			}
		case models.ActionDelegate:
			if seat, ok := seats[action.UserID]; ok && action.DelegateTo != "" {
				seats[action.DelegateTo] = seat
			}
		case models.ActionApprove:
			if seat, ok := seats[action.UserID]; ok {
				approved[seat] = true
			} else {
				approved["~"+action.UserID] = true
			}
		}
	}

	required := RequiredApprovals(step)

	if rejectedBy != "" {
		return Outcome{
			Decision:  DecisionRejected,
			Reason:    "rejected_by " + rejectedBy,
			Approvals: len(approved),
			Required:  required,
		}
	}

	switch step.Consensus {
	case models.ConsensusAny:
		if len(approved) >= 1 {
			return Outcome{Decision: DecisionApproved, Approvals: len(approved), Required: required}
		}

		return Outcome{Decision: DecisionPending, Reason: "waiting_for_any", Required: required}
	case models.ConsensusMajority, models.ConsensusWeighted:
		count := len(approved)
		if count >= required {
			return Outcome{Decision: DecisionApproved, Approvals: count, Required: required}
		}

		return Outcome{
			Decision:  DecisionPending,
			Reason:    fmt.Sprintf("waiting_for_majority (%d/%d)", count, required),
			Approvals: count,
			Required:  required,
		}
	default:
		count := 0

		for _, approver := range step.Approvers {
			if approved[approver] {
				count++
			}
		}

		if count == len(step.Approvers) && count > 0 {
			return Outcome{Decision: DecisionApproved, Approvals: count, Required: required}
		}

		return Outcome{
			Decision:  DecisionPending,
			Reason:    fmt.Sprintf("waiting_for_all (%d/%d)", count, len(step.Approvers)),
			Approvals: count,
			Required:  required,
		}
	}
}
