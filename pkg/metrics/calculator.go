// Package metrics derives reporting figures from approval requests and exposes prometheus collectors.
package metrics

import (
	"time"

	"github.com/dukex/approvals/pkg/models"
)

// RequestMetrics is the read-side summary of one request.
type RequestMetrics struct {
	CompletionPercentage float64        `json:"completion_percentage"`
	TimeElapsed          time.Duration  `json:"time_elapsed"`
	TimeRemaining        *time.Duration `json:"time_remaining,omitempty"`
	IsOverdue            bool           `json:"is_overdue"`
	IsComplete           bool           `json:"is_complete"`
	ActionCount          int            `json:"action_count"`
}

// Calculate computes metrics at now. Completion counts the steps before the current
// one, so an approved request stays at the share of its last step; IsComplete marks approval.
func Calculate(request *models.ApprovalRequest, actions []*models.ApprovalAction, now time.Time) RequestMetrics {
	m := RequestMetrics{
		TimeElapsed: now.Sub(request.CreatedAt),
		IsOverdue:   request.IsOverdue(now),
		IsComplete:  request.Status == models.RequestStatusApproved,
		ActionCount: len(actions),
	}

	if request.TotalSteps > 0 && request.CurrentStep > 1 {
		m.CompletionPercentage = float64(request.CurrentStep-1) / float64(request.TotalSteps) * 100
	}

	if request.Deadline != nil {
		remaining := request.Deadline.Sub(now)
		m.TimeRemaining = &remaining
	}

	return m
}
