package mocks

import (
	"context"
	"time"

	"github.com/dukex/approvals/pkg/models"
	"github.com/dukex/approvals/pkg/protocol"
	"github.com/stretchr/testify/mock"
)

// MockDocumentStore is a mock implementation of protocol.DocumentStore.
type MockDocumentStore struct {
	mock.Mock
}

func (m *MockDocumentStore) GetDocumentMetadata(ctx context.Context, documentID string) (map[string]any, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(map[string]any), args.Error(1)
}

// MockDocumentCheckouts is a mock implementation of protocol.DocumentCheckouts.
type MockDocumentCheckouts struct {
	mock.Mock
}

func (m *MockDocumentCheckouts) CheckOut(ctx context.Context, documentID, userID string, until time.Time) error {
	args := m.Called(ctx, documentID, userID, until)

	return args.Error(0)
}

// MockIdentityStore is a mock implementation of protocol.IdentityStore.
type MockIdentityStore struct {
	mock.Mock
}

func (m *MockIdentityStore) GetUser(ctx context.Context, userID string) (*protocol.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*protocol.User), args.Error(1)
}

// MockAuditSink is a mock implementation of protocol.AuditSink.
type MockAuditSink struct {
	mock.Mock
}

func (m *MockAuditSink) RecordEvent(ctx context.Context, event protocol.AuditEvent) error {
	args := m.Called(ctx, event)

	return args.Error(0)
}

// MockNotifier is a mock implementation of protocol.Notifier.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, userIDs []string, eventType string, payload map[string]any) error {
	args := m.Called(ctx, userIDs, eventType, payload)

	return args.Error(0)
}

// MockAction is a mock implementation of protocol.Action.
type MockAction struct {
	mock.Mock
}

func (m *MockAction) Type() string {
	args := m.Called()

	return args.String(0)
}

func (m *MockAction) Execute(ctx context.Context, request *models.ApprovalRequest) error {
	args := m.Called(ctx, request)

	return args.Error(0)
}
