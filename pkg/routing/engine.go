// Package routing selects the approval chain a document should enter.
package routing

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/dukex/approvals/pkg/conditions"
	"github.com/dukex/approvals/pkg/models"
	"github.com/dukex/approvals/pkg/persistence"
	"github.com/dukex/approvals/pkg/protocol"
)

// Decision is the result of routing a document. Matched is false when no active rule applies;
// the caller picks the fallback.
type Decision struct {
	Matched bool                `json:"matched"`
	ChainID string              `json:"chain_id,omitempty"`
	Rule    *models.RoutingRule `json:"rule,omitempty"`
}

// Engine evaluates active routing rules against document metadata. It never writes,
// so it is safe for previews.
type Engine struct {
	rules     persistence.RuleRepository
	documents protocol.DocumentStore
	evaluator *conditions.Evaluator
	logger    *slog.Logger
}

func NewEngine(
	rules persistence.RuleRepository,
	documents protocol.DocumentStore,
	evaluator *conditions.Evaluator,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		rules:     rules,
		documents: documents,
		evaluator: evaluator,
		logger:    logger.With("module", "routing"),
	}
}

// Route returns the chain of the highest-priority active rule matching metadata.
// Ties are broken by rule creation order.
func (e *Engine) Route(ctx context.Context, metadata map[string]any) (Decision, error) {
	rules, err := e.rules.ActiveRules(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to load routing rules: %w", err)
	}

	rules = slices.Clone(rules)
	slices.SortStableFunc(rules, func(a, b *models.RoutingRule) int {
		return cmp.Or(
			cmp.Compare(b.Priority, a.Priority),
			a.CreatedAt.Compare(b.CreatedAt),
			cmp.Compare(a.ID, b.ID),
		)
	})

	for _, rule := range rules {
		if !rule.Active {
			continue
		}

		if e.evaluator.Match(metadata, rule.Conditions) {
			e.logger.DebugContext(ctx, "Routing rule matched", "rule_id", rule.ID, "chain_id", rule.ChainID)

			return Decision{Matched: true, ChainID: rule.ChainID, Rule: rule}, nil
		}
	}

	e.logger.DebugContext(ctx, "No routing rule matched", "rules", len(rules))

	return Decision{}, nil
}

// RouteDocument fetches the document metadata and routes it.
func (e *Engine) RouteDocument(ctx context.Context, documentID string) (Decision, map[string]any, error) {
	metadata, err := e.documents.GetDocumentMetadata(ctx, documentID)
	if err != nil {
		return Decision{}, nil, fmt.Errorf("failed to get metadata of document %s: %w", documentID, err)
	}

	decision, err := e.Route(ctx, metadata)
	if err != nil {
		return Decision{}, nil, err
	}

	return decision, metadata, nil
}
