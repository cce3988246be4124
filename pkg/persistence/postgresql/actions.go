package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/approvals/pkg/models"
)

// ActionRepository is the append-only action log table.
type ActionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewActionRepository(db *sql.DB, logger *slog.Logger) *ActionRepository {
	return &ActionRepository{db: db, logger: logger}
}

func (r *ActionRepository) Append(ctx context.Context, action *models.ApprovalAction) error {
	return insertAction(ctx, r.db, action)
}

func (r *ActionRepository) ListByRequest(ctx context.Context, requestID string) ([]*models.ApprovalAction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, request_id, user_id, action, comments, annotations, step_number, delegate_to, created_at
		FROM approval_actions
		WHERE request_id = $1
		ORDER BY seq
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	actions := make([]*models.ApprovalAction, 0)

	for rows.Next() {
		var (
			action      models.ApprovalAction
			annotations []byte
		)

		err := rows.Scan(
			&action.ID,
			&action.RequestID,
			&action.UserID,
			&action.Action,
			&action.Comments,
			&annotations,
			&action.StepNumber,
			&action.DelegateTo,
			&action.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}

		err = unmarshalJSON(annotations, &action.Annotations)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal annotations: %w", err)
		}

		actions = append(actions, &action)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating actions: %w", err)
	}

	return actions, nil
}

func insertAction(ctx context.Context, db execer, action *models.ApprovalAction) error {
	if action.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}

		action.ID = id
	}

	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now().UTC()
	}

	annotations, err := marshalJSON(action.Annotations)
	if err != nil {
		return fmt.Errorf("failed to marshal annotations: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO approval_actions (id, request_id, user_id, action, comments, annotations, step_number, delegate_to, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		action.ID,
		action.RequestID,
		action.UserID,
		action.Action,
		action.Comments,
		annotations,
		action.StepNumber,
		action.DelegateTo,
		action.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append action to request %s: %w", action.RequestID, err)
	}

	return nil
}
