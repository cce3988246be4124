package audit

import (
	"errors"
	"testing"
	"time"

	"github.com/dukex/approvals/pkg/eventbus"
	"github.com/dukex/approvals/pkg/events"
	"github.com/dukex/approvals/pkg/log"
	"github.com/dukex/approvals/pkg/mocks"
	"github.com/dukex/approvals/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestBusSink_RecordEvent(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	bus := &mocks.MockEventBus{}
	bus.On("GenerateID").Return("evt-9")
	bus.On("Publish", mock.Anything, "req-1", mock.MatchedBy(func(event eventbus.Event) bool {
		audit, ok := event.(events.AuditRecorded)

		return ok && audit.ID == "evt-9" && audit.EventName == events.RequestApproved &&
			audit.FromStatus == "pending" && audit.ToStatus == "approved" && audit.Timestamp.Equal(now)
	})).Return(nil)

	err := NewBusSink(bus).RecordEvent(t.Context(), protocol.AuditEvent{
		Type:       events.RequestApproved,
		RequestID:  "req-1",
		FromStatus: "pending",
		ToStatus:   "approved",
		Timestamp:  now,
	})
	require.NoError(t, err)
	bus.AssertExpectations(t)
}

func TestFanout(t *testing.T) {
	t.Parallel()

	failing := &mocks.MockAuditSink{}
	failing.On("RecordEvent", mock.Anything, mock.Anything).Return(errors.New("sink down"))

	ok := &mocks.MockAuditSink{}
	ok.On("RecordEvent", mock.Anything, mock.Anything).Return(nil)

	err := Fanout{NewLogSink(log.Discard()), failing, ok}.RecordEvent(t.Context(), protocol.AuditEvent{Type: events.RequestRejected})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink down")
	ok.AssertCalled(t, "RecordEvent", mock.Anything, mock.Anything)
}
