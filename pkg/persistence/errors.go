package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrChainNotFound indicates an approval chain was not found by the given identifier.
	ErrChainNotFound = errors.New("approval chain not found")

	// ErrRequestNotFound indicates an approval request was not found by the given identifier.
	ErrRequestNotFound = errors.New("approval request not found")

	// ErrRequestAlreadyExists indicates a request with the same identifier already exists.
	ErrRequestAlreadyExists = errors.New("approval request already exists")

	// ErrRuleNotFound indicates a routing rule was not found by the given identifier.
	ErrRuleNotFound = errors.New("routing rule not found")

	// ErrConcurrencyConflict indicates the request was modified since it was read.
	ErrConcurrencyConflict = errors.New("concurrent modification")
)

// EntityError wraps repository errors with the operation and entity involved.
type EntityError struct {
	Op     string // Operation being performed (e.g., "GetByID", "Update")
	Entity string // "chain", "request", "action" or "rule"
	ID     string
	Err    error
}

func (e *EntityError) Error() string {
	return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
}

func (e *EntityError) Unwrap() error {
	return e.Err
}

func (e *EntityError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewChainError(op, chainID string, err error) *EntityError {
	return &EntityError{Op: op, Entity: "chain", ID: chainID, Err: err}
}

func NewRequestError(op, requestID string, err error) *EntityError {
	return &EntityError{Op: op, Entity: "request", ID: requestID, Err: err}
}

func NewRuleError(op, ruleID string, err error) *EntityError {
	return &EntityError{Op: op, Entity: "rule", ID: ruleID, Err: err}
}

// IsNotFound checks if an error indicates any entity was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrChainNotFound) ||
		errors.Is(err, ErrRequestNotFound) ||
		errors.Is(err, ErrRuleNotFound)
}

// IsConcurrencyConflict checks if an error indicates a lost optimistic update.
func IsConcurrencyConflict(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}
