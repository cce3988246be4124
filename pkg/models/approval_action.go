package models

import "time"

// ActionType is what a user did to a request.
type ActionType string

const (
	ActionApprove        ActionType = "approve"
	ActionReject         ActionType = "reject"
	ActionRequestChanges ActionType = "request_changes"
	ActionEscalate       ActionType = "escalate"
	ActionComment        ActionType = "comment"
	ActionDelegate       ActionType = "delegate"

	// ActionView is only meaningful to permission checks and is never recorded.
	ActionView ActionType = "view"
)

func (a ActionType) IsValid() bool {
	switch a {
	case ActionApprove, ActionReject, ActionRequestChanges, ActionEscalate, ActionComment, ActionDelegate:
		return true
	default:
		return false
	}
}

// SystemActor is the user id recorded on actions taken by the engine itself.
const SystemActor = "system"

// ApprovalAction is an immutable, append-only record of a user's action on a request.
type ApprovalAction struct {
	ID          string         `json:"id"`
	RequestID   string         `json:"request_id"`
	UserID      string         `json:"user_id"`
	Action      ActionType     `json:"action"`
	Comments    string         `json:"comments,omitempty"`
	Annotations map[string]any `json:"annotations,omitempty"`
	StepNumber  int            `json:"step_number"`
	DelegateTo  string         `json:"delegate_to,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
