// Package protocol defines the ports between the approval engine and its external collaborators.
package protocol

import (
	"context"

	"github.com/dukex/approvals/pkg/models"
)

// Action is a deferred side effect executed once a request reaches approved.
// Actions are selected by the request's metadata "type" discriminator.
type Action interface {
	Type() string
	Execute(ctx context.Context, request *models.ApprovalRequest) error
}
