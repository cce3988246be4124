// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/dukex/approvals/pkg/actions"
	"github.com/dukex/approvals/pkg/actions/checkout"
	logaction "github.com/dukex/approvals/pkg/actions/log"
	"github.com/dukex/approvals/pkg/actions/webhook"
	"github.com/dukex/approvals/pkg/protocol"
)

// NewRegistry returns the side-effect registry with the native actions.
// The checkout action is only registered when a checkouts store is available.
func NewRegistry(logger *slog.Logger, checkouts protocol.DocumentCheckouts) *actions.Registry {
	reg := actions.NewRegistry(logger)

	reg.Register(logaction.NewAction(logger))
	reg.Register(webhook.NewAction(logger))

	if checkouts != nil {
		reg.Register(checkout.NewAction(checkouts))
	}

	return reg
}
