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

// ChainRepository handles approval chain file operations.
type ChainRepository struct {
	store *store
}

// Save writes the chain document, assigning ids to the chain and its steps when missing.
func (r *ChainRepository) Save(_ context.Context, chain *models.ApprovalChain) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if chain.ID == "" {
		id, err := newID()
		if err != nil {
			return persistence.NewChainError("Save", "", err)
		}

		chain.ID = id
	}

	for _, step := range chain.Steps {
		step.ChainID = chain.ID

		if step.ID == "" {
			id, err := newID()
			if err != nil {
				return persistence.NewChainError("Save", chain.ID, err)
			}

			step.ID = id
		}
	}

	now := time.Now().UTC()
	if chain.CreatedAt.IsZero() {
		chain.CreatedAt = now
	}

	chain.UpdatedAt = now

	return r.store.write(chainsDir, chain.ID, chain)
}

func (r *ChainRepository) GetByID(_ context.Context, id string) (*models.ApprovalChain, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var chain models.ApprovalChain

	err := r.store.read(chainsDir, id, &chain)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, persistence.NewChainError("GetByID", id, persistence.ErrChainNotFound)
		}

		return nil, fmt.Errorf("failed to fetch chain %s: %w", id, err)
	}

	return &chain, nil
}

// List returns all chains, oldest first.
func (r *ChainRepository) List(ctx context.Context) ([]*models.ApprovalChain, error) {
	ids, err := r.store.ids(chainsDir)
	if err != nil {
		return nil, err
	}

	chains := make([]*models.ApprovalChain, 0, len(ids))

	for _, id := range ids {
		chain, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		chains = append(chains, chain)
	}

	slices.SortStableFunc(chains, func(a, b *models.ApprovalChain) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})

	return chains, nil
}
