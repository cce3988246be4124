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
	"github.com/lib/pq"
)

// ChainRepository handles approval chain database operations.
type ChainRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewChainRepository(db *sql.DB, logger *slog.Logger) *ChainRepository {
	return &ChainRepository{db: db, logger: logger}
}

// Save upserts the chain and replaces its steps in one transaction.
func (r *ChainRepository) Save(ctx context.Context, chain *models.ApprovalChain) (err error) {
	now := time.Now().UTC()

	if chain.CreatedAt.IsZero() {
		chain.CreatedAt = now
	}

	chain.UpdatedAt = now

	if chain.ID == "" {
		chain.ID, err = newID()
		if err != nil {
			return persistence.NewChainError("Save", "", err)
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO approval_chains (id, name, description, document_types, active, created_at, updated_at, disabled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			document_types = EXCLUDED.document_types,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at,
			disabled_at = EXCLUDED.disabled_at
	`,
		chain.ID,
		chain.Name,
		chain.Description,
		pq.Array(nonNil(chain.DocumentTypes)),
		chain.Active,
		chain.CreatedAt,
		chain.UpdatedAt,
		chain.DisabledAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save chain %s: %w", chain.ID, err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM approval_steps WHERE chain_id = $1", chain.ID)
	if err != nil {
		return fmt.Errorf("failed to delete existing steps: %w", err)
	}

	for _, step := range chain.Steps {
		err = r.insertStep(ctx, tx, chain.ID, step)
		if err != nil {
			return err
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (r *ChainRepository) insertStep(ctx context.Context, tx execer, chainID string, step *models.ApprovalStep) error {
	if step.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}

		step.ID = id
	}

	step.ChainID = chainID

	conditions, err := marshalJSON(step.Conditions)
	if err != nil {
		return fmt.Errorf("failed to marshal conditions of step %d: %w", step.StepNumber, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO approval_steps (id, chain_id, step_number, name, approvers, consensus_type,
			parallel_approval, timeout_days, escalation_chain, conditions, optional)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		step.ID,
		chainID,
		step.StepNumber,
		step.Name,
		pq.Array(nonNil(step.Approvers)),
		step.Consensus,
		step.Parallel,
		step.TimeoutDays,
		pq.Array(nonNil(step.EscalationChain)),
		conditions,
		step.Optional,
	)
	if err != nil {
		return fmt.Errorf("failed to save step %d: %w", step.StepNumber, err)
	}

	return nil
}

const selectChain = `
	SELECT
		id
	  , name
	  , description
	  , document_types
	  , active
	  , created_at
	  , updated_at
	  , disabled_at
	FROM approval_chains
`

func (r *ChainRepository) GetByID(ctx context.Context, id string) (*models.ApprovalChain, error) {
	chain, err := scanChain(r.db.QueryRowContext(ctx, selectChain+" WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewChainError("GetByID", id, persistence.ErrChainNotFound)
		}

		return nil, fmt.Errorf("failed to scan chain: %w", err)
	}

	err = r.loadSteps(ctx, chain)
	if err != nil {
		return nil, err
	}

	return chain, nil
}

func (r *ChainRepository) List(ctx context.Context) ([]*models.ApprovalChain, error) {
	rows, err := r.db.QueryContext(ctx, selectChain+" ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query chains: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	chains := make([]*models.ApprovalChain, 0)

	for rows.Next() {
		chain, err := scanChain(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chain: %w", err)
		}

		chains = append(chains, chain)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating chains: %w", err)
	}

	for _, chain := range chains {
		err = r.loadSteps(ctx, chain)
		if err != nil {
			return nil, err
		}
	}

	return chains, nil
}

func (r *ChainRepository) loadSteps(ctx context.Context, chain *models.ApprovalChain) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, step_number, name, approvers, consensus_type, parallel_approval,
			timeout_days, escalation_chain, conditions, optional
		FROM approval_steps
		WHERE chain_id = $1
		ORDER BY step_number
	`, chain.ID)
	if err != nil {
		return fmt.Errorf("failed to query steps of chain %s: %w", chain.ID, err)
	}

	defer closeRows(ctx, r.logger, rows)

	steps := make([]*models.ApprovalStep, 0)

	for rows.Next() {
		var (
			step           models.ApprovalStep
			conditionsJSON []byte
		)

		err := rows.Scan(
			&step.ID,
			&step.StepNumber,
			&step.Name,
			pq.Array(&step.Approvers),
			&step.Consensus,
			&step.Parallel,
			&step.TimeoutDays,
			pq.Array(&step.EscalationChain),
			&conditionsJSON,
			&step.Optional,
		)
		if err != nil {
			return fmt.Errorf("failed to scan step: %w", err)
		}

		err = unmarshalJSON(conditionsJSON, &step.Conditions)
		if err != nil {
			return fmt.Errorf("failed to unmarshal step conditions: %w", err)
		}

		step.ChainID = chain.ID
		steps = append(steps, &step)
	}

	err = rows.Err()
	if err != nil {
		return fmt.Errorf("error iterating steps: %w", err)
	}

	chain.Steps = steps

	return nil
}

func scanChain(row scanner) (*models.ApprovalChain, error) {
	var chain models.ApprovalChain

	err := row.Scan(
		&chain.ID,
		&chain.Name,
		&chain.Description,
		pq.Array(&chain.DocumentTypes),
		&chain.Active,
		&chain.CreatedAt,
		&chain.UpdatedAt,
		&chain.DisabledAt,
	)
	if err != nil {
		return nil, err
	}

	return &chain, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}

	return values
}
