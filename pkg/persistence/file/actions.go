package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/dukex/approvals/pkg/models"
)

// ActionRepository keeps one JSON array of actions per request.
type ActionRepository struct {
	store *store
}

func (r *ActionRepository) Append(_ context.Context, action *models.ApprovalAction) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.store.appendActions(action.RequestID, action)
}

func (r *ActionRepository) ListByRequest(_ context.Context, requestID string) ([]*models.ApprovalAction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	return r.store.readActions(requestID)
}

func (s *store) readActions(requestID string) ([]*models.ApprovalAction, error) {
	actions := make([]*models.ApprovalAction, 0)

	err := s.read(actionsDir, requestID, &actions)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read actions of request %s: %w", requestID, err)
	}

	return actions, nil
}

// appendActions must be called with the write lock held.
func (s *store) appendActions(requestID string, actions ...*models.ApprovalAction) error {
	if len(actions) == 0 {
		return nil
	}

	existing, err := s.readActions(requestID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()

	for _, action := range actions {
		if action.ID == "" {
			id, err := newID()
			if err != nil {
				return err
			}

			action.ID = id
		}

		action.RequestID = requestID

		if action.CreatedAt.IsZero() {
			action.CreatedAt = now
		}

		existing = append(existing, action)
	}

	return s.write(actionsDir, requestID, existing)
}
