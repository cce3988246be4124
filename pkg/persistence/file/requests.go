package file

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"time"

	"github.com/dukex/approvals/pkg/models"
	"github.com/dukex/approvals/pkg/persistence"
)

// RequestRepository handles approval request file operations.
type RequestRepository struct {
	store *store
}

func (r *RequestRepository) Create(_ context.Context, request *models.ApprovalRequest) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if request.ID == "" {
		id, err := newID()
		if err != nil {
			return persistence.NewRequestError("Create", "", err)
		}

		request.ID = id
	} else if _, err := r.load(request.ID); err == nil {
		return persistence.NewRequestError("Create", request.ID, persistence.ErrRequestAlreadyExists)
	}

	now := time.Now().UTC()
	request.CreatedAt = now
	request.UpdatedAt = now
	request.Version = 1

	return r.store.write(requestsDir, request.ID, request)
}

func (r *RequestRepository) GetByID(_ context.Context, id string) (*models.ApprovalRequest, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	request, err := r.load(id)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, persistence.NewRequestError("GetByID", id, persistence.ErrRequestNotFound)
		}

		return nil, fmt.Errorf("failed to fetch request %s: %w", id, err)
	}

	return request, nil
}

func (r *RequestRepository) Update(_ context.Context, request *models.ApprovalRequest, actions ...*models.ApprovalAction) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored, err := r.load(request.ID)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return persistence.NewRequestError("Update", request.ID, persistence.ErrRequestNotFound)
		}

		return fmt.Errorf("failed to fetch request %s: %w", request.ID, err)
	}

	if stored.Version != request.Version {
		return persistence.NewRequestError("Update", request.ID, persistence.ErrConcurrencyConflict)
	}

	next := request.Clone()
	next.Version++
	next.CreatedAt = stored.CreatedAt
	next.UpdatedAt = time.Now().UTC()

	// Actions go first so a bumped version always carries its actions.
	var previous []*models.ApprovalAction

	if len(actions) > 0 {
		previous, err = r.store.readActions(request.ID)
		if err != nil {
			return err
		}

		err = r.store.appendActions(request.ID, actions...)
		if err != nil {
			return err
		}
	}

	err = r.store.write(requestsDir, next.ID, next)
	if err != nil {
		if len(actions) > 0 {
			if restoreErr := r.store.write(actionsDir, request.ID, previous); restoreErr != nil {
				return errors.Join(err, restoreErr)
			}
		}

		return err
	}

	request.Version = next.Version
	request.UpdatedAt = next.UpdatedAt

	return nil
}

func (r *RequestRepository) Overdue(ctx context.Context, now time.Time) ([]*models.ApprovalRequest, error) {
	all, err := r.List(ctx, persistence.RequestFilter{Status: models.RequestStatusPending})
	if err != nil {
		return nil, err
	}

	return slices.DeleteFunc(all, func(request *models.ApprovalRequest) bool {
		return !request.NeedsEscalation(now)
	}), nil
}

// List returns matching requests, oldest first.
func (r *RequestRepository) List(_ context.Context, filter persistence.RequestFilter) ([]*models.ApprovalRequest, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	ids, err := r.store.ids(requestsDir)
	if err != nil {
		return nil, err
	}

	requests := make([]*models.ApprovalRequest, 0, len(ids))

	for _, id := range ids {
		request, err := r.load(id)
		if err != nil {
			return nil, fmt.Errorf("failed to load request %s: %w", id, err)
		}

		if filter.Matches(request) {
			requests = append(requests, request)
		}
	}

	slices.SortStableFunc(requests, func(a, b *models.ApprovalRequest) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})

	if filter.Limit > 0 && len(requests) > filter.Limit {
		requests = requests[:filter.Limit]
	}

	return requests, nil
}

func (r *RequestRepository) load(id string) (*models.ApprovalRequest, error) {
	var request models.ApprovalRequest

	err := r.store.read(requestsDir, id, &request)
	if err != nil {
		return nil, err
	}

	return &request, nil
}
