// Package checkout checks a document out to a user once its approval completes.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/approvals/pkg/models"
	"github.com/dukex/approvals/pkg/protocol"
)

const (
	Type = "document_checkout"

	defaultDuration = 24 * time.Hour
)

var ErrInvalidDuration = errors.New("invalid duration_hours")

// Action reads user_id, document_id and duration_hours from the request metadata.
// user_id defaults to the requester, document_id to the request's document and
// duration_hours to 24.
type Action struct {
	checkouts protocol.DocumentCheckouts
	now       func() time.Time
}

func NewAction(checkouts protocol.DocumentCheckouts) *Action {
	return &Action{checkouts: checkouts, now: time.Now}
}

func (*Action) Type() string {
	return Type
}

func (a *Action) Execute(ctx context.Context, request *models.ApprovalRequest) error {
	userID, _ := request.Metadata["user_id"].(string)
	if userID == "" {
		userID = request.RequesterID
	}

	documentID, _ := request.Metadata["document_id"].(string)
	if documentID == "" {
		documentID = request.DocumentID
	}

	duration, err := durationOf(request.Metadata["duration_hours"])
	if err != nil {
		return err
	}

	until := a.now().UTC().Add(duration)

	err = a.checkouts.CheckOut(ctx, documentID, userID, until)
	if err != nil {
		return fmt.Errorf("failed to check out document %s for %s: %w", documentID, userID, err)
	}

	return nil
}

func durationOf(v any) (time.Duration, error) {
	var hours float64

	switch h := v.(type) {
	case nil:
		return defaultDuration, nil
	case float64:
		hours = h
	case int:
		hours = float64(h)
	case int64:
		hours = float64(h)
	default:
		return 0, fmt.Errorf("%w: %v", ErrInvalidDuration, v)
	}

	if hours <= 0 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidDuration, v)
	}

	return time.Duration(hours * float64(time.Hour)), nil
}
