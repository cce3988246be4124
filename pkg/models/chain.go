// Package models defines the core domain models for document approval workflows.
package models

import (
	"slices"
	"time"
)

// ConsensusType is the voting policy that decides when a step is satisfied.
type ConsensusType string

const (
	ConsensusAll       ConsensusType = "all"
	ConsensusAny       ConsensusType = "any"
	ConsensusMajority  ConsensusType = "majority"
	ConsensusWeighted  ConsensusType = "weighted" // evaluated as majority, weights are not modeled
	ConsensusUnanimous ConsensusType = "unanimous"
)

var consensusTypes = []ConsensusType{
	ConsensusAll,
	ConsensusAny,
	ConsensusMajority,
	ConsensusWeighted,
	ConsensusUnanimous,
}

// ConsensusTypes returns every recognized consensus policy.
func ConsensusTypes() []ConsensusType {
	return slices.Clone(consensusTypes)
}

func (c ConsensusType) IsValid() bool {
	return slices.Contains(consensusTypes, c)
}

// ApprovalChain is an ordered list of approval steps applied to a class of documents.
type ApprovalChain struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"                     validate:"required,min=3"`
	Description   string          `json:"description"`
	DocumentTypes []string        `json:"document_types,omitempty"`
	Active        bool            `json:"active"`
	Steps         []*ApprovalStep `json:"steps"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	DisabledAt    *time.Time      `json:"disabled_at,omitempty"`
}

// Step returns the step with the given 1-based number.
func (c *ApprovalChain) Step(number int) (*ApprovalStep, bool) {
	for _, step := range c.Steps {
		if step.StepNumber == number {
			return step, true
		}
	}

	return nil, false
}

// SortedSteps returns the chain steps ordered by step number.
func (c *ApprovalChain) SortedSteps() []*ApprovalStep {
	steps := slices.Clone(c.Steps)
	slices.SortStableFunc(steps, func(a, b *ApprovalStep) int {
		return a.StepNumber - b.StepNumber
	})

	return steps
}

// Usable reports whether new requests may be started on the chain.
func (c *ApprovalChain) Usable() bool {
	return c.Active && c.DisabledAt == nil && len(c.Steps) > 0
}

// AppliesTo reports whether the chain accepts the given document type.
// A chain without document types accepts any document.
func (c *ApprovalChain) AppliesTo(documentType string) bool {
	return len(c.DocumentTypes) == 0 || slices.Contains(c.DocumentTypes, documentType)
}

// ApprovalStep is one stage of an approval chain.
type ApprovalStep struct {
	ID              string        `json:"id"`
	ChainID         string        `json:"chain_id"`
	StepNumber      int           `json:"step_number"                validate:"min=1"`
	Name            string        `json:"name"                       validate:"required"`
	Approvers       []string      `json:"approvers"                  validate:"required,min=1,dive,required"`
	Consensus       ConsensusType `json:"consensus_type"             validate:"required"`
	Parallel        bool          `json:"parallel_approval"`
	TimeoutDays     int           `json:"timeout_days"               validate:"min=0"`
	EscalationChain []string      `json:"escalation_chain,omitempty"`
	Conditions      ConditionSet  `json:"conditions,omitempty"`
	Optional        bool          `json:"optional"`
}

// Timeout returns the step timeout as a duration, zero when unset.
func (s *ApprovalStep) Timeout() time.Duration {
	if s.TimeoutDays <= 0 {
		return 0
	}

	return time.Duration(s.TimeoutDays) * 24 * time.Hour
}
