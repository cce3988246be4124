// Package notify delivers approval notifications through the event bus.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dukex/approvals/pkg/eventbus"
	"github.com/dukex/approvals/pkg/events"
)

const publishTimeout = 10 * time.Second

// BusNotifier publishes NotificationRequested events without blocking the caller.
// Publishing happens on a goroutine detached from the caller's cancellation; failures are logged.
type BusNotifier struct {
	bus    eventbus.EventPublisher
	ids    func() string
	logger *slog.Logger
	wg     sync.WaitGroup
}

func NewBusNotifier(bus eventbus.EventBus, logger *slog.Logger) *BusNotifier {
	return &BusNotifier{
		bus:    bus,
		ids:    bus.GenerateID,
		logger: logger.With("module", "notifier"),
	}
}

// Notify queues one notification for userIDs. It only fails when there is nobody to notify.
func (n *BusNotifier) Notify(ctx context.Context, userIDs []string, eventType string, payload map[string]any) error {
	recipients := compact(userIDs)
	if len(recipients) == 0 {
		return nil
	}

	requestID, _ := payload["request_id"].(string)

	event := events.NotificationRequested{
		BaseEvent: events.BaseEvent{
			ID:        n.ids(),
			Type:      events.NotificationRequestedEvent,
			Timestamp: time.Now().UTC(),
			RequestID: requestID,
		},
		Recipients: recipients,
		EventName:  eventType,
		Payload:    payload,
	}

	n.wg.Add(1)

	go func() {
		defer n.wg.Done()

		publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()

		err := n.bus.Publish(publishCtx, requestID, event)
		if err != nil {
			n.logger.ErrorContext(publishCtx, "Failed to publish notification",
				"event_type", eventType,
				"request_id", requestID,
				"recipients", len(recipients),
				"error", err)
		}
	}()

	return nil
}

// Wait blocks until queued notifications are published.
func (n *BusNotifier) Wait() {
	n.wg.Wait()
}

func compact(userIDs []string) []string {
	out := slices.Clone(userIDs)
	out = slices.DeleteFunc(out, func(id string) bool { return id == "" })
	slices.Sort(out)

	return slices.Compact(out)
}

// Delivery hands a notification to an end-user channel (mail, chat, ...).
type Delivery interface {
	Deliver(ctx context.Context, notification *events.NotificationRequested) error
}

// LogDelivery writes notifications to the log. It is the delivery used when no gateway is configured.
type LogDelivery struct {
	Logger *slog.Logger
}

func (d LogDelivery) Deliver(ctx context.Context, notification *events.NotificationRequested) error {
	d.Logger.InfoContext(ctx, "Notification delivered",
		"event", notification.EventName,
		"request_id", notification.RequestID,
		"recipients", notification.Recipients)

	return nil
}

// Subscribe routes NotificationRequested events from the bus to delivery.
func Subscribe(bus eventbus.EventSubscriber, delivery Delivery) error {
	return bus.Handle(events.NotificationRequestedEvent, func(ctx context.Context, event any) error {
		notification, ok := event.(*events.NotificationRequested)
		if !ok {
			return fmt.Errorf("unexpected event %T", event)
		}

		return delivery.Deliver(ctx, notification)
	})
}
