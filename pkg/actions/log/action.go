// Package logaction writes an approved request to the structured log.
package logaction

import (
	"context"
	"log/slog"

	"github.com/dukex/approvals/pkg/models"
	"github.com/dukex/approvals/pkg/template"
)

const Type = "log"

// Action logs the request. An optional metadata "message" is rendered as a template.
type Action struct {
	logger *slog.Logger
}

func NewAction(logger *slog.Logger) *Action {
	return &Action{logger: logger.With("action_type", Type)}
}

func (*Action) Type() string {
	return Type
}

func (a *Action) Execute(ctx context.Context, request *models.ApprovalRequest) error {
	message, _ := request.Metadata["message"].(string)
	if message == "" {
		message = "Request approved"
	}

	rendered, err := template.Render(message, template.RequestData(request))
	if err != nil {
		return err
	}

	a.logger.InfoContext(ctx, rendered,
		"request_id", request.ID,
		"document_id", request.DocumentID,
		"chain_id", request.ChainID,
		"requester_id", request.RequesterID)

	return nil
}
