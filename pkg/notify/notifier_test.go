package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/dukex/approvals/pkg/eventbus"
	"github.com/dukex/approvals/pkg/events"
	"github.com/dukex/approvals/pkg/log"
	"github.com/dukex/approvals/pkg/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestBusNotifier_Notify(t *testing.T) {
	t.Parallel()

	bus := &mocks.MockEventBus{}
	bus.On("GenerateID").Return("evt-1")
	bus.On("Publish", mock.Anything, "req-1", mock.MatchedBy(func(event eventbus.Event) bool {
		notification, ok := event.(events.NotificationRequested)

		return ok &&
			notification.ID == "evt-1" &&
			notification.EventName == events.RequestAdvanced &&
			assert.ObjectsAreEqual([]string{"bob", "carol"}, notification.Recipients)
	})).Return(nil).Once()

	notifier := NewBusNotifier(bus, log.Discard())

	err := notifier.Notify(t.Context(), []string{"carol", "bob", "", "carol"}, events.RequestAdvanced, map[string]any{"request_id": "req-1"})
	require.NoError(t, err)

	notifier.Wait()
	bus.AssertExpectations(t)
}

func TestBusNotifier_PublishFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	bus := &mocks.MockEventBus{}
	bus.On("GenerateID").Return("evt-1")
	bus.On("Publish", mock.Anything, "req-1", mock.Anything).Return(errors.New("broker down"))

	notifier := NewBusNotifier(bus, log.Discard())

	ctx, cancel := context.WithCancel(t.Context())
	require.NoError(t, notifier.Notify(ctx, []string{"bob"}, events.RequestApproved, map[string]any{"request_id": "req-1"}))
	cancel()

	notifier.Wait()
	bus.AssertNumberOfCalls(t, "Publish", 1)
}

func TestBusNotifier_NobodyToNotify(t *testing.T) {
	t.Parallel()

	bus := &mocks.MockEventBus{}
	bus.On("GenerateID").Return("evt-1")

	notifier := NewBusNotifier(bus, log.Discard())
	require.NoError(t, notifier.Notify(t.Context(), nil, events.RequestApproved, nil))

	notifier.Wait()
	bus.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

type recordingDelivery struct {
	got chan *events.NotificationRequested
}

func (d recordingDelivery) Deliver(_ context.Context, n *events.NotificationRequested) error {
	d.got <- n

	return nil
}

func TestSubscribe(t *testing.T) {
	t.Parallel()

	bus := &mocks.MockEventBus{}

	var handler eventbus.EventHandler

	bus.On("Handle", events.NotificationRequestedEvent, mock.Anything).Run(func(args mock.Arguments) {
		handler = args.Get(1).(eventbus.EventHandler)
	}).Return(nil)

	delivery := recordingDelivery{got: make(chan *events.NotificationRequested, 1)}
	require.NoError(t, Subscribe(bus, delivery))
	require.NotNil(t, handler)

	require.NoError(t, handler(t.Context(), &events.NotificationRequested{EventName: events.RequestEscalated}))
	assert.Equal(t, events.RequestEscalated, (<-delivery.got).EventName)

	assert.Error(t, handler(t.Context(), "not a notification"))
}
