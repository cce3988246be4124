package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/approvals/pkg/chains"
	"github.com/dukex/approvals/pkg/conditions"
	"github.com/dukex/approvals/pkg/models"
	"github.com/dukex/approvals/pkg/persistence"
)

// Chains manages approval chain authoring. Chains are validated when activated
// and on every structural change while active; running requests keep their snapshot.
type Chains struct {
	chains persistence.ChainRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewChains(p persistence.Persistence, logger *slog.Logger) *Chains {
	return &Chains{
		chains: p.ChainRepository(),
		logger: logger.With("module", "chain_service"),
		now:    time.Now,
	}
}

// Create stores a new chain. Steps without a number follow the previous step.
// An active chain must pass validation.
func (c *Chains) Create(ctx context.Context, chain *models.ApprovalChain) (*models.ApprovalChain, error) {
	if strings.TrimSpace(chain.Name) == "" {
		return nil, invalid("CreateChain", "chain name is required")
	}

	chain.ID = ""
	chain.CreatedAt = time.Time{}
	chain.DisabledAt = nil

	next := 1

	for _, step := range chain.Steps {
		step.ID = ""

		if step.StepNumber == 0 {
			step.StepNumber = next
		}

		next = step.StepNumber + 1
	}

	if err := c.checkSteps(chain); err != nil {
		return nil, err
	}

	if err := c.chains.Save(ctx, chain); err != nil {
		return nil, fmt.Errorf("failed to save chain: %w", err)
	}

	c.logger.InfoContext(ctx, "Chain created", "chain_id", chain.ID, "steps", len(chain.Steps), "active", chain.Active)

	return chain, nil
}

func (c *Chains) Get(ctx context.Context, id string) (*models.ApprovalChain, error) {
	return c.chains.GetByID(ctx, id)
}

func (c *Chains) List(ctx context.Context) ([]*models.ApprovalChain, error) {
	return c.chains.List(ctx)
}

// AddStep appends step to the chain. A zero step number means "after the last step".
func (c *Chains) AddStep(ctx context.Context, chainID string, step *models.ApprovalStep) (*models.ApprovalChain, error) {
	chain, err := c.chains.GetByID(ctx, chainID)
	if err != nil {
		return nil, err
	}

	if step.StepNumber == 0 {
		step.StepNumber = len(chain.Steps) + 1
	}

	step.ID = ""
	chain.Steps = append(chain.Steps, step)

	if err := c.checkSteps(chain); err != nil {
		return nil, err
	}

	if err := c.chains.Save(ctx, chain); err != nil {
		return nil, fmt.Errorf("failed to save chain: %w", err)
	}

	c.logger.InfoContext(ctx, "Step added", "chain_id", chain.ID, "step", step.StepNumber)

	return chain, nil
}

// ReorderSteps renumbers the steps following stepIDs, which must name every step once.
func (c *Chains) ReorderSteps(ctx context.Context, chainID string, stepIDs []string) (*models.ApprovalChain, error) {
	chain, err := c.chains.GetByID(ctx, chainID)
	if err != nil {
		return nil, err
	}

	if len(stepIDs) != len(chain.Steps) {
		return nil, invalid("ReorderSteps", fmt.Sprintf("expected %d step ids, got %d", len(chain.Steps), len(stepIDs)))
	}

	byID := make(map[string]*models.ApprovalStep, len(chain.Steps))
	for _, step := range chain.Steps {
		byID[step.ID] = step
	}

	ordered := make([]*models.ApprovalStep, 0, len(stepIDs))

	for i, id := range stepIDs {
		step, ok := byID[id]
		if !ok {
			return nil, invalid("ReorderSteps", fmt.Sprintf("unknown or repeated step id %q", id))
		}

		delete(byID, id)

		step.StepNumber = i + 1
		ordered = append(ordered, step)
	}

	chain.Steps = ordered

	if err := c.checkSteps(chain); err != nil {
		return nil, err
	}

	if err := c.chains.Save(ctx, chain); err != nil {
		return nil, fmt.Errorf("failed to save chain: %w", err)
	}

	return chain, nil
}

// Activate validates the chain and makes it available to new requests.
func (c *Chains) Activate(ctx context.Context, chainID string) (*models.ApprovalChain, error) {
	chain, err := c.chains.GetByID(ctx, chainID)
	if err != nil {
		return nil, err
	}

	if err := chains.Validate(chain); err != nil {
		return nil, err
	}

	chain.Active = true
	chain.DisabledAt = nil

	if err := c.chains.Save(ctx, chain); err != nil {
		return nil, fmt.Errorf("failed to save chain: %w", err)
	}

	c.logger.InfoContext(ctx, "Chain activated", "chain_id", chain.ID)

	return chain, nil
}

// Disable soft-disables the chain. Requests already bound to it continue.
func (c *Chains) Disable(ctx context.Context, chainID string) (*models.ApprovalChain, error) {
	chain, err := c.chains.GetByID(ctx, chainID)
	if err != nil {
		return nil, err
	}

	now := c.now().UTC()
	chain.Active = false
	chain.DisabledAt = &now

	if err := c.chains.Save(ctx, chain); err != nil {
		return nil, fmt.Errorf("failed to save chain: %w", err)
	}

	c.logger.InfoContext(ctx, "Chain disabled", "chain_id", chain.ID)

	return chain, nil
}

// checkSteps runs the full validation on active chains and only the step
// condition check on drafts.
func (c *Chains) checkSteps(chain *models.ApprovalChain) error {
	if chain.Active {
		return chains.Validate(chain)
	}

	for _, step := range chain.Steps {
		if err := conditions.ValidateSet(step.Conditions); err != nil {
			return invalid("ValidateChain", fmt.Sprintf("step %d: %v", step.StepNumber, err))
		}
	}

	return nil
}
