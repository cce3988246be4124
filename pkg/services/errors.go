// Package services implements the approval use cases on top of the engine components.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/approvals/pkg/chains"
	"github.com/dukex/approvals/pkg/conditions"
	"github.com/dukex/approvals/pkg/persistence"
	"github.com/dukex/approvals/pkg/protocol"
	"github.com/dukex/approvals/pkg/workflow"
)

var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest = errors.New("invalid request")

	// ErrPermissionDenied wraps a denied verdict (403 Forbidden).
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNoRoute is returned by Submit when no rule matches and no default chain is configured (422).
	ErrNoRoute = errors.New("no routing rule matched the document")

	// ErrInvalidState is returned when the request status does not allow the operation (409 Conflict).
	ErrInvalidState = errors.New("operation not allowed in the current request state")

	// ErrDocumentNotFound is returned when the document store does not know the document (404).
	ErrDocumentNotFound = protocol.ErrDocumentNotFound
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func invalid(op, message string) *ServiceError {
	return &ServiceError{Op: op, Code: "invalid_request", Message: message, Err: ErrInvalidRequest}
}

func denied(op, reason string) *ServiceError {
	return &ServiceError{Op: op, Code: "permission_denied", Message: reason, Err: ErrPermissionDenied}
}

func invalidState(op, message string) *ServiceError {
	return &ServiceError{Op: op, Code: "invalid_state", Message: message, Err: ErrInvalidState}
}

// IsValidationError checks if an error should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, chains.ErrInvalidChain) ||
		errors.Is(err, conditions.ErrInvalidConditionSet) ||
		errors.Is(err, workflow.ErrChainUnusable) ||
		errors.Is(err, workflow.ErrDocumentTypeNotAccepted)
}

// IsPermissionError checks if an error should return HTTP 403.
func IsPermissionError(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// IsConflictError checks if an error should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrInvalidState) ||
		errors.Is(err, persistence.ErrConcurrencyConflict) ||
		errors.Is(err, persistence.ErrRequestAlreadyExists)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return persistence.IsNotFound(err) || errors.Is(err, ErrDocumentNotFound)
}
