package actions

import (
	"errors"
	"testing"

	"github.com/dukex/approvals/pkg/log"
	"github.com/dukex/approvals/pkg/mocks"
	"github.com/dukex/approvals/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Dispatch(t *testing.T) {
	t.Parallel()

	checkout := &mocks.MockAction{}
	checkout.On("Type").Return("document_checkout")

	registry := NewRegistry(log.Discard())
	registry.Register(checkout)

	assert.Equal(t, []string{"document_checkout"}, registry.Types())

	t.Run("no discriminator", func(t *testing.T) {
		ran, err := registry.Dispatch(t.Context(), &models.ApprovalRequest{ID: "r1"})
		require.NoError(t, err)
		assert.False(t, ran)
	})

	t.Run("unknown discriminator is a no-op", func(t *testing.T) {
		ran, err := registry.Dispatch(t.Context(), &models.ApprovalRequest{ID: "r2", Metadata: map[string]any{"type": "teleport"}})
		require.NoError(t, err)
		assert.False(t, ran)
	})

	t.Run("registered discriminator runs", func(t *testing.T) {
		request := &models.ApprovalRequest{ID: "r3", Metadata: map[string]any{"type": "document_checkout"}}
		checkout.On("Execute", mock.Anything, request).Return(nil).Once()

		ran, err := registry.Dispatch(t.Context(), request)
		require.NoError(t, err)
		assert.True(t, ran)
	})

	t.Run("failure is reported", func(t *testing.T) {
		request := &models.ApprovalRequest{ID: "r4", Metadata: map[string]any{"type": "document_checkout"}}
		checkout.On("Execute", mock.Anything, request).Return(errors.New("locked")).Once()

		ran, err := registry.Dispatch(t.Context(), request)
		assert.True(t, ran)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "document_checkout")
	})
}
