// Package chains validates approval chain structure.
package chains

import (
	"errors"
	"fmt"

	"github.com/dukex/approvals/pkg/conditions"
	"github.com/dukex/approvals/pkg/models"
)

// Code identifies the kind of structural problem found in a chain.
type Code string

const (
	CodeEmptyChain            Code = "EmptyChain"
	CodeInvalidStepSequence   Code = "InvalidStepSequence"
	CodeInvalidConsensusType  Code = "InvalidConsensusType"
	CodeMissingApprovers      Code = "MissingApprovers"
	CodeInvalidStepConditions Code = "InvalidStepConditions"
)

// ErrInvalidChain is matched by every *ValidationError.
var ErrInvalidChain = errors.New("invalid approval chain")

// ValidationError describes the first structural problem of a chain.
type ValidationError struct {
	Code       Code
	StepNumber int // offending step, 0 for chain-level problems
	Expected   int // expected step number, InvalidStepSequence only
	Actual     int // actual step number, InvalidStepSequence only
	Err        error
}

func (e *ValidationError) Error() string {
	switch e.Code {
	case CodeEmptyChain:
		return "approval chain has no steps"
	case CodeInvalidStepSequence:
		return fmt.Sprintf("invalid step sequence: expected step %d, got %d", e.Expected, e.Actual)
	case CodeInvalidConsensusType:
		return fmt.Sprintf("step %d has an invalid consensus type", e.StepNumber)
	case CodeMissingApprovers:
		return fmt.Sprintf("step %d has no approvers", e.StepNumber)
	case CodeInvalidStepConditions:
		return fmt.Sprintf("step %d has invalid conditions: %v", e.StepNumber, e.Err)
	default:
		return fmt.Sprintf("invalid approval chain: %s", e.Code)
	}
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidChain
}

// Validate checks that steps are numbered 1..n without gaps or duplicates, that every
// step has a known consensus type and at least one approver, and that step conditions
// use known operators. Steps are checked in ascending order; the first problem wins.
func Validate(chain *models.ApprovalChain) error {
	if chain == nil || len(chain.Steps) == 0 {
		return &ValidationError{Code: CodeEmptyChain}
	}

	for i, step := range chain.SortedSteps() {
		expected := i + 1
		if step.StepNumber != expected {
			return &ValidationError{
				Code:       CodeInvalidStepSequence,
				StepNumber: step.StepNumber,
				Expected:   expected,
				Actual:     step.StepNumber,
			}
		}

		if !step.Consensus.IsValid() {
			return &ValidationError{Code: CodeInvalidConsensusType, StepNumber: step.StepNumber}
		}

		if len(step.Approvers) == 0 {
			return &ValidationError{Code: CodeMissingApprovers, StepNumber: step.StepNumber}
		}

		if err := conditions.ValidateSet(step.Conditions); err != nil {
			return &ValidationError{Code: CodeInvalidStepConditions, StepNumber: step.StepNumber, Err: err}
		}
	}

	return nil
}

// IsValidationError reports whether err carries a *ValidationError and returns it.
func IsValidationError(err error) (*ValidationError, bool) {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr, true
	}

	return nil, false
}
