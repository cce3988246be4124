// Package actions dispatches the deferred side effect of an approved request.
package actions

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/dukex/approvals/pkg/models"
	"github.com/dukex/approvals/pkg/protocol"
)

// Registry maps a request's metadata "type" discriminator to the action performing it.
type Registry struct {
	logger *slog.Logger

	mu      sync.RWMutex
	actions map[string]protocol.Action
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:  logger.With("module", "actions"),
		actions: make(map[string]protocol.Action),
	}
}

// Register adds or replaces the action for its type.
func (r *Registry) Register(action protocol.Action) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.actions[action.Type()] = action
}

func (r *Registry) Lookup(actionType string) (protocol.Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	action, ok := r.actions[actionType]

	return action, ok
}

// Types lists registered discriminators in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Sorted(maps.Keys(r.actions))
}

// Dispatch runs the side effect named by the request metadata. Requests without a
// discriminator and unknown discriminators are logged no-ops. The returned bool
// reports whether an action ran.
func (r *Registry) Dispatch(ctx context.Context, request *models.ApprovalRequest) (bool, error) {
	actionType := request.SideEffectType()
	if actionType == "" {
		return false, nil
	}

	action, ok := r.Lookup(actionType)
	if !ok {
		r.logger.InfoContext(ctx, "No action registered for side effect", "type", actionType, "request_id", request.ID)

		return false, nil
	}

	r.logger.InfoContext(ctx, "Dispatching side effect", "type", actionType, "request_id", request.ID)

	err := action.Execute(ctx, request)
	if err != nil {
		return true, fmt.Errorf("side effect %s failed: %w", actionType, err)
	}

	return true, nil
}
