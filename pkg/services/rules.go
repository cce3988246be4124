package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/approvals/pkg/conditions"
	"github.com/dukex/approvals/pkg/models"
	"github.com/dukex/approvals/pkg/persistence"
	"github.com/dukex/approvals/pkg/routing"
)

// Rules manages routing rules.
type Rules struct {
	rules  persistence.RuleRepository
	chains persistence.ChainRepository
	engine *routing.Engine
	logger *slog.Logger
}

func NewRules(p persistence.Persistence, engine *routing.Engine, logger *slog.Logger) *Rules {
	return &Rules{
		rules:  p.RuleRepository(),
		chains: p.ChainRepository(),
		engine: engine,
		logger: logger.With("module", "rule_service"),
	}
}

func (r *Rules) Create(ctx context.Context, rule *models.RoutingRule) (*models.RoutingRule, error) {
	rule.ID = ""

	if err := r.validate(ctx, "CreateRule", rule); err != nil {
		return nil, err
	}

	if err := r.rules.Save(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to save rule: %w", err)
	}

	r.logger.InfoContext(ctx, "Rule created", "rule_id", rule.ID, "chain_id", rule.ChainID, "priority", rule.Priority)

	return rule, nil
}

// Update replaces an existing rule, keeping its creation time and so its tie-break order.
func (r *Rules) Update(ctx context.Context, id string, rule *models.RoutingRule) (*models.RoutingRule, error) {
	existing, err := r.rules.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	rule.ID = existing.ID
	rule.CreatedAt = existing.CreatedAt

	if err := r.validate(ctx, "UpdateRule", rule); err != nil {
		return nil, err
	}

	if err := r.rules.Save(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to save rule: %w", err)
	}

	return rule, nil
}

func (r *Rules) Get(ctx context.Context, id string) (*models.RoutingRule, error) {
	return r.rules.GetByID(ctx, id)
}

func (r *Rules) List(ctx context.Context) ([]*models.RoutingRule, error) {
	return r.rules.List(ctx)
}

func (r *Rules) Deactivate(ctx context.Context, id string) (*models.RoutingRule, error) {
	rule, err := r.rules.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	rule.Active = false

	if err := r.rules.Save(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to save rule: %w", err)
	}

	return rule, nil
}

// Preview reports where a document with metadata would be routed without creating anything.
func (r *Rules) Preview(ctx context.Context, metadata map[string]any) (routing.Decision, error) {
	return r.engine.Route(ctx, metadata)
}

func (r *Rules) validate(ctx context.Context, op string, rule *models.RoutingRule) error {
	if strings.TrimSpace(rule.Name) == "" {
		return invalid(op, "rule name is required")
	}

	if err := conditions.ValidateSet(rule.Conditions); err != nil {
		return invalid(op, err.Error())
	}

	if _, err := r.chains.GetByID(ctx, rule.ChainID); err != nil {
		if persistence.IsNotFound(err) {
			return invalid(op, fmt.Sprintf("chain %s does not exist", rule.ChainID))
		}

		return err
	}

	return nil
}
