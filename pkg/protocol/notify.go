package protocol

import "context"

// Notifier delivers notifications to users. Delivery is asynchronous and at-most-once.
type Notifier interface {
	Notify(ctx context.Context, userIDs []string, eventType string, payload map[string]any) error
}
