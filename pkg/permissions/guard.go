// Package permissions authorizes user actions on approval requests.
package permissions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/approvals/pkg/models"
	"github.com/dukex/approvals/pkg/protocol"
)

// Config names the bypass principal. Either field may be empty.
type Config struct {
	AdminUserID string
	AdminRole   string
}

// Verdict is the outcome of an authorization check. Denial is not an error.
type Verdict struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func allow(reason string) Verdict {
	return Verdict{Allowed: true, Reason: reason}
}

func deny(format string, args ...any) Verdict {
	return Verdict{Reason: fmt.Sprintf(format, args...)}
}

type Guard struct {
	config     Config
	identities protocol.IdentityStore
	logger     *slog.Logger
}

// NewGuard creates a guard. identities may be nil when no admin role is configured.
func NewGuard(config Config, identities protocol.IdentityStore, logger *slog.Logger) *Guard {
	return &Guard{
		config:     config,
		identities: identities,
		logger:     logger.With("module", "permissions"),
	}
}

// Authorize decides whether userID may perform action on request.
//
// Terminal requests only allow view, for everybody including the admin. Otherwise
// the admin may do anything, the requester may view, escalate is refused on an
// escalated request, and every other action needs the user to be assigned.
func (g *Guard) Authorize(ctx context.Context, userID string, request *models.ApprovalRequest, action models.ActionType) Verdict {
	if userID == "" {
		return deny("missing user")
	}

	if request.Status.IsTerminal() && action != models.ActionView {
		return deny("request is %s", request.Status)
	}

	if g.IsAdmin(ctx, userID) {
		return allow("admin")
	}

	if action == models.ActionView && request.RequesterID == userID {
		return allow("requester")
	}

	if action == models.ActionEscalate && request.Status == models.RequestStatusEscalated {
		return deny("request is already escalated")
	}

	if !request.IsAssigned(userID) {
		return deny("user %s is not assigned to step %d", userID, request.CurrentStep)
	}

	return allow("assigned")
}

// IsAdmin reports whether userID is the configured bypass principal. Identity
// lookup failures are logged and treated as not admin.
func (g *Guard) IsAdmin(ctx context.Context, userID string) bool {
	if g.config.AdminUserID != "" && userID == g.config.AdminUserID {
		return true
	}

	if g.config.AdminRole == "" || g.identities == nil {
		return false
	}

	user, err := g.identities.GetUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, protocol.ErrUserNotFound) {
			g.logger.WarnContext(ctx, "Failed to resolve user", "user_id", userID, "error", err)
		}

		return false
	}

	return user.HasRole(g.config.AdminRole)
}
