// Package web provides the HTTP API of the approval engine.
package web

import "github.com/dukex/approvals/pkg/models"

// UserHeader carries the ID of the acting user.
const UserHeader = "X-User-ID"

// StepRequest is an approval step in a chain request body.
type StepRequest struct {
	StepNumber      int                  `json:"step_number"       validate:"min=0"`
	Name            string               `json:"name"              validate:"required"`
	Approvers       []string             `json:"approvers"         validate:"required,min=1,dive,required"`
	Consensus       models.ConsensusType `json:"consensus_type"    validate:"required,oneof=all any majority weighted unanimous"`
	Parallel        bool                 `json:"parallel_approval"`
	TimeoutDays     int                  `json:"timeout_days"      validate:"min=0"`
	EscalationChain []string             `json:"escalation_chain"`
	Conditions      models.ConditionSet  `json:"conditions"`
	Optional        bool                 `json:"optional"`
}

func (s StepRequest) toStep() *models.ApprovalStep {
	return &models.ApprovalStep{
		StepNumber:      s.StepNumber,
		Name:            s.Name,
		Approvers:       s.Approvers,
		Consensus:       s.Consensus,
		Parallel:        s.Parallel,
		TimeoutDays:     s.TimeoutDays,
		EscalationChain: s.EscalationChain,
		Conditions:      s.Conditions,
		Optional:        s.Optional,
	}
}

// CreateChainRequest is the request body for creating a draft chain.
type CreateChainRequest struct {
	Name          string        `json:"name"           validate:"required,min=3"`
	Description   string        `json:"description"`
	DocumentTypes []string      `json:"document_types"`
	Steps         []StepRequest `json:"steps"          validate:"dive"`
}

func (r CreateChainRequest) toChain() *models.ApprovalChain {
	chain := &models.ApprovalChain{
		Name:          r.Name,
		Description:   r.Description,
		DocumentTypes: r.DocumentTypes,
		Steps:         make([]*models.ApprovalStep, 0, len(r.Steps)),
	}

	for _, step := range r.Steps {
		chain.Steps = append(chain.Steps, step.toStep())
	}

	return chain
}

// ReorderStepsRequest lists every step ID of a chain in the new order.
type ReorderStepsRequest struct {
	StepIDs []string `json:"step_ids" validate:"required,min=1,dive,required"`
}

// RuleRequest is the request body for creating or updating a routing rule.
// Active defaults to true.
type RuleRequest struct {
	Name        string              `json:"name"        validate:"required,min=3"`
	Description string              `json:"description"`
	Conditions  models.ConditionSet `json:"conditions"  validate:"required"`
	ChainID     string              `json:"chain_id"    validate:"required"`
	Priority    int                 `json:"priority"`
	Active      *bool               `json:"active,omitempty"`
}

func (r RuleRequest) toRule() *models.RoutingRule {
	active := true
	if r.Active != nil {
		active = *r.Active
	}

	return &models.RoutingRule{
		Name:        r.Name,
		Description: r.Description,
		Conditions:  r.Conditions,
		ChainID:     r.ChainID,
		Priority:    r.Priority,
		Active:      active,
	}
}

// PreviewRequest holds document metadata to route without starting a request.
type PreviewRequest struct {
	Metadata map[string]any `json:"metadata" validate:"required"`
}

// CreateRequestRequest starts a request on an explicit chain.
type CreateRequestRequest struct {
	DocumentID string          `json:"document_id" validate:"required"`
	ChainID    string          `json:"chain_id"    validate:"required"`
	Priority   models.Priority `json:"priority"    validate:"omitempty,oneof=low medium high critical urgent"`
	Metadata   map[string]any  `json:"metadata"`
}

// SubmitDocumentRequest starts a request on the chain chosen by routing.
type SubmitDocumentRequest struct {
	DocumentID string          `json:"document_id" validate:"required"`
	Priority   models.Priority `json:"priority"    validate:"omitempty,oneof=low medium high critical urgent"`
	Metadata   map[string]any  `json:"metadata"`
}

// ActionRequest records an action on a request.
type ActionRequest struct {
	Action      models.ActionType `json:"action"      validate:"required"`
	Comments    string            `json:"comments"`
	Annotations map[string]any    `json:"annotations"`
	DelegateTo  string            `json:"delegate_to" validate:"required_if=Action delegate"`
}

// CancelRequest optionally explains a cancellation.
type CancelRequest struct {
	Reason string `json:"reason"`
}
