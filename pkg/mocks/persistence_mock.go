package mocks

import (
	"context"
	"time"

	"github.com/dukex/approvals/pkg/models"
	"github.com/dukex/approvals/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockRuleRepository is a mock implementation of persistence.RuleRepository.
type MockRuleRepository struct {
	mock.Mock
}

func (m *MockRuleRepository) Save(ctx context.Context, rule *models.RoutingRule) error {
	args := m.Called(ctx, rule)

	return args.Error(0)
}

func (m *MockRuleRepository) GetByID(ctx context.Context, id string) (*models.RoutingRule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.RoutingRule), args.Error(1)
}

func (m *MockRuleRepository) List(ctx context.Context) ([]*models.RoutingRule, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.RoutingRule), args.Error(1)
}

func (m *MockRuleRepository) ActiveRules(ctx context.Context) ([]*models.RoutingRule, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.RoutingRule), args.Error(1)
}

// MockRequestRepository is a mock implementation of persistence.RequestRepository.
type MockRequestRepository struct {
	mock.Mock
}

func (m *MockRequestRepository) Create(ctx context.Context, request *models.ApprovalRequest) error {
	args := m.Called(ctx, request)

	return args.Error(0)
}

func (m *MockRequestRepository) GetByID(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ApprovalRequest), args.Error(1)
}

func (m *MockRequestRepository) Update(ctx context.Context, request *models.ApprovalRequest, actions ...*models.ApprovalAction) error {
	args := m.Called(ctx, request, actions)

	return args.Error(0)
}

func (m *MockRequestRepository) Overdue(ctx context.Context, now time.Time) ([]*models.ApprovalRequest, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ApprovalRequest), args.Error(1)
}

func (m *MockRequestRepository) List(ctx context.Context, filter persistence.RequestFilter) ([]*models.ApprovalRequest, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ApprovalRequest), args.Error(1)
}
