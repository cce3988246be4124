// Package persistence provides the data storage abstraction layer for chains, requests, actions and routing rules.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/approvals/pkg/models"
)

type Persistence interface {
	ChainRepository() ChainRepository
	RequestRepository() RequestRepository
	ActionRepository() ActionRepository
	RuleRepository() RuleRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ChainRepository stores approval chains together with their steps.
type ChainRepository interface {
	// Save inserts or replaces a chain and all of its steps.
	Save(ctx context.Context, chain *models.ApprovalChain) error
	GetByID(ctx context.Context, id string) (*models.ApprovalChain, error)
	List(ctx context.Context) ([]*models.ApprovalChain, error)
}

// RequestRepository stores approval requests. Writes after creation go through Update,
// which only succeeds when the stored version still equals request.Version.
type RequestRepository interface {
	Create(ctx context.Context, request *models.ApprovalRequest) error
	GetByID(ctx context.Context, id string) (*models.ApprovalRequest, error)

	// Update writes request if nobody else wrote it since it was read, and appends
	// actions in the same unit of work. On success request.Version is incremented.
	// A stale version yields ErrConcurrencyConflict and nothing is written.
	Update(ctx context.Context, request *models.ApprovalRequest, actions ...*models.ApprovalAction) error

	// Overdue returns pending requests whose deadline passed before now and that
	// were not escalated since that deadline.
	Overdue(ctx context.Context, now time.Time) ([]*models.ApprovalRequest, error)

	List(ctx context.Context, filter RequestFilter) ([]*models.ApprovalRequest, error)
}

// RequestFilter narrows List results. Zero values match everything.
type RequestFilter struct {
	Status      models.RequestStatus
	ChainID     string
	RequesterID string
	AssignedTo  string
	Limit       int
}

// Matches reports whether request passes the filter.
func (f RequestFilter) Matches(request *models.ApprovalRequest) bool {
	if f.Status != "" && request.Status != f.Status {
		return false
	}

	if f.ChainID != "" && request.ChainID != f.ChainID {
		return false
	}

	if f.RequesterID != "" && request.RequesterID != f.RequesterID {
		return false
	}

	if f.AssignedTo != "" && !request.IsAssigned(f.AssignedTo) {
		return false
	}

	return true
}

// ActionRepository is the append-only log of user actions.
type ActionRepository interface {
	Append(ctx context.Context, action *models.ApprovalAction) error

	// ListByRequest returns the actions of a request in the order they were recorded.
	ListByRequest(ctx context.Context, requestID string) ([]*models.ApprovalAction, error)
}

// RuleRepository stores routing rules.
type RuleRepository interface {
	Save(ctx context.Context, rule *models.RoutingRule) error
	GetByID(ctx context.Context, id string) (*models.RoutingRule, error)
	List(ctx context.Context) ([]*models.RoutingRule, error)

	// ActiveRules returns active rules ordered by priority, highest first.
	ActiveRules(ctx context.Context) ([]*models.RoutingRule, error)
}
