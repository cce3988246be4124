package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/approvals/pkg/models"
	"github.com/dukex/approvals/pkg/persistence"
)

// RuleRepository handles routing rule database operations.
type RuleRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewRuleRepository(db *sql.DB, logger *slog.Logger) *RuleRepository {
	return &RuleRepository{db: db, logger: logger}
}

const selectRule = `
	SELECT id, name, description, conditions, chain_id, priority, active, created_at, updated_at
	FROM routing_rules
`

func (r *RuleRepository) Save(ctx context.Context, rule *models.RoutingRule) error {
	now := time.Now().UTC()

	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}

	rule.UpdatedAt = now

	if rule.ID == "" {
		id, err := newID()
		if err != nil {
			return persistence.NewRuleError("Save", "", err)
		}

		rule.ID = id
	}

	conditions, err := marshalJSON(rule.Conditions)
	if err != nil {
		return fmt.Errorf("failed to marshal rule conditions: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO routing_rules (id, name, description, conditions, chain_id, priority, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			conditions = EXCLUDED.conditions,
			chain_id = EXCLUDED.chain_id,
			priority = EXCLUDED.priority,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`,
		rule.ID,
		rule.Name,
		rule.Description,
		conditions,
		rule.ChainID,
		rule.Priority,
		rule.Active,
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save rule %s: %w", rule.ID, err)
	}

	return nil
}

func (r *RuleRepository) GetByID(ctx context.Context, id string) (*models.RoutingRule, error) {
	rule, err := scanRule(r.db.QueryRowContext(ctx, selectRule+" WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRuleError("GetByID", id, persistence.ErrRuleNotFound)
		}

		return nil, fmt.Errorf("failed to scan rule: %w", err)
	}

	return rule, nil
}

func (r *RuleRepository) List(ctx context.Context) ([]*models.RoutingRule, error) {
	return r.query(ctx, selectRule+" ORDER BY priority DESC, created_at, id")
}

func (r *RuleRepository) ActiveRules(ctx context.Context) ([]*models.RoutingRule, error) {
	return r.query(ctx, selectRule+" WHERE active ORDER BY priority DESC, created_at, id")
}

func (r *RuleRepository) query(ctx context.Context, query string, args ...any) ([]*models.RoutingRule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	rules := make([]*models.RoutingRule, 0)

	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}

		rules = append(rules, rule)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	return rules, nil
}

func scanRule(row scanner) (*models.RoutingRule, error) {
	var (
		rule       models.RoutingRule
		conditions []byte
	)

	err := row.Scan(
		&rule.ID,
		&rule.Name,
		&rule.Description,
		&conditions,
		&rule.ChainID,
		&rule.Priority,
		&rule.Active,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = unmarshalJSON(conditions, &rule.Conditions)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal rule conditions: %w", err)
	}

	return &rule, nil
}
