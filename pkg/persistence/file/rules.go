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

// RuleRepository handles routing rule file operations.
type RuleRepository struct {
	store *store
}

func (r *RuleRepository) Save(_ context.Context, rule *models.RoutingRule) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if rule.ID == "" {
		id, err := newID()
		if err != nil {
			return persistence.NewRuleError("Save", "", err)
		}

		rule.ID = id
	}

	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}

	rule.UpdatedAt = now

	return r.store.write(rulesDir, rule.ID, rule)
}

func (r *RuleRepository) GetByID(_ context.Context, id string) (*models.RoutingRule, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var rule models.RoutingRule

	err := r.store.read(rulesDir, id, &rule)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, persistence.NewRuleError("GetByID", id, persistence.ErrRuleNotFound)
		}

		return nil, fmt.Errorf("failed to fetch rule %s: %w", id, err)
	}

	return &rule, nil
}

// List returns every rule, highest priority first.
func (r *RuleRepository) List(ctx context.Context) ([]*models.RoutingRule, error) {
	ids, err := r.store.ids(rulesDir)
	if err != nil {
		return nil, err
	}

	rules := make([]*models.RoutingRule, 0, len(ids))

	for _, id := range ids {
		rule, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		rules = append(rules, rule)
	}

	slices.SortStableFunc(rules, func(a, b *models.RoutingRule) int {
		return cmp.Or(
			cmp.Compare(b.Priority, a.Priority),
			a.CreatedAt.Compare(b.CreatedAt),
			cmp.Compare(a.ID, b.ID),
		)
	})

	return rules, nil
}

func (r *RuleRepository) ActiveRules(ctx context.Context) ([]*models.RoutingRule, error) {
	rules, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	return slices.DeleteFunc(rules, func(rule *models.RoutingRule) bool {
		return !rule.Active
	}), nil
}
