package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/approvals/pkg/models"
	"github.com/dukex/approvals/pkg/persistence"
	"github.com/lib/pq"
)

// RequestRepository handles approval request database operations.
type RequestRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewRequestRepository(db *sql.DB, logger *slog.Logger) *RequestRepository {
	return &RequestRepository{db: db, logger: logger}
}

const selectRequest = `
	SELECT
		id
	  , document_id
	  , chain_id
	  , requester_id
	  , status
	  , priority
	  , current_step
	  , total_steps
	  , assigned_to
	  , deadline
	  , escalation_date
	  , metadata
	  , version
	  , created_at
	  , updated_at
	  , completed_at
	FROM approval_requests
`

func (r *RequestRepository) Create(ctx context.Context, request *models.ApprovalRequest) error {
	if request.ID == "" {
		id, err := newID()
		if err != nil {
			return persistence.NewRequestError("Create", "", err)
		}

		request.ID = id
	}

	now := time.Now().UTC()
	request.CreatedAt = now
	request.UpdatedAt = now
	request.Version = 1

	metadata, err := marshalJSON(request.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO approval_requests (id, document_id, chain_id, requester_id, status, priority,
			current_step, total_steps, assigned_to, deadline, escalation_date, metadata, version,
			created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		request.ID,
		request.DocumentID,
		request.ChainID,
		request.RequesterID,
		request.Status,
		request.Priority,
		request.CurrentStep,
		request.TotalSteps,
		pq.Array(nonNil(request.AssignedTo)),
		request.Deadline,
		request.EscalationDate,
		metadata,
		request.Version,
		request.CreatedAt,
		request.UpdatedAt,
		request.CompletedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewRequestError("Create", request.ID, persistence.ErrRequestAlreadyExists)
		}

		return fmt.Errorf("failed to insert request %s: %w", request.ID, err)
	}

	return nil
}

func (r *RequestRepository) GetByID(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	request, err := scanRequest(r.db.QueryRowContext(ctx, selectRequest+" WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRequestError("GetByID", id, persistence.ErrRequestNotFound)
		}

		return nil, fmt.Errorf("failed to scan request: %w", err)
	}

	return request, nil
}

// Update compares and bumps the version column, so exactly one of several
// writers holding the same version succeeds.
func (r *RequestRepository) Update(ctx context.Context, request *models.ApprovalRequest, actions ...*models.ApprovalAction) (err error) {
	metadata, err := marshalJSON(request.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	updatedAt := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	result, err := tx.ExecContext(ctx, `
		UPDATE approval_requests SET
			status = $3,
			priority = $4,
			current_step = $5,
			total_steps = $6,
			assigned_to = $7,
			deadline = $8,
			escalation_date = $9,
			metadata = $10,
			updated_at = $11,
			completed_at = $12,
			version = version + 1
		WHERE id = $1 AND version = $2
	`,
		request.ID,
		request.Version,
		request.Status,
		request.Priority,
		request.CurrentStep,
		request.TotalSteps,
		pq.Array(nonNil(request.AssignedTo)),
		request.Deadline,
		request.EscalationDate,
		metadata,
		updatedAt,
		request.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update request %s: %w", request.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		var exists bool

		err = tx.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM approval_requests WHERE id = $1)", request.ID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check request %s: %w", request.ID, err)
		}

		if !exists {
			err = persistence.NewRequestError("Update", request.ID, persistence.ErrRequestNotFound)

			return err
		}

		err = persistence.NewRequestError("Update", request.ID, persistence.ErrConcurrencyConflict)

		return err
	}

	for _, action := range actions {
		action.RequestID = request.ID

		err = insertAction(ctx, tx, action)
		if err != nil {
			return err
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	request.Version++
	request.UpdatedAt = updatedAt

	return nil
}

func (r *RequestRepository) Overdue(ctx context.Context, now time.Time) ([]*models.ApprovalRequest, error) {
	return r.query(ctx, selectRequest+`
		WHERE status = $1
		  AND deadline IS NOT NULL
		  AND deadline < $2
		  AND (escalation_date IS NULL OR escalation_date < deadline)
		ORDER BY deadline, id
	`, models.RequestStatusPending, now)
}

func (r *RequestRepository) List(ctx context.Context, filter persistence.RequestFilter) ([]*models.ApprovalRequest, error) {
	var (
		clauses []string
		args    []any
	)

	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}

	if filter.ChainID != "" {
		add("chain_id = $%d", filter.ChainID)
	}

	if filter.RequesterID != "" {
		add("requester_id = $%d", filter.RequesterID)
	}

	if filter.AssignedTo != "" {
		add("$%d = ANY(assigned_to)", filter.AssignedTo)
	}

	query := selectRequest
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	query += " ORDER BY created_at, id"

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	return r.query(ctx, query, args...)
}

func (r *RequestRepository) query(ctx context.Context, query string, args ...any) ([]*models.ApprovalRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	requests := make([]*models.ApprovalRequest, 0)

	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}

		requests = append(requests, request)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating requests: %w", err)
	}

	return requests, nil
}

func scanRequest(row scanner) (*models.ApprovalRequest, error) {
	var (
		request  models.ApprovalRequest
		metadata []byte
	)

	err := row.Scan(
		&request.ID,
		&request.DocumentID,
		&request.ChainID,
		&request.RequesterID,
		&request.Status,
		&request.Priority,
		&request.CurrentStep,
		&request.TotalSteps,
		pq.Array(&request.AssignedTo),
		&request.Deadline,
		&request.EscalationDate,
		&metadata,
		&request.Version,
		&request.CreatedAt,
		&request.UpdatedAt,
		&request.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	err = unmarshalJSON(metadata, &request.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return &request, nil
}
