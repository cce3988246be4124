package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/approvals/pkg/channels/gochannel"
	"github.com/dukex/approvals/pkg/channels/kafka"
	"github.com/dukex/approvals/pkg/eventbus"
)

// NewEventBus creates the event bus for provider: "gochannel" (in-process, the default) or "kafka".
func NewEventBus(provider string, logger *slog.Logger) eventbus.EventBus {
	watermillLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "", "gochannel":
		pub, sub, err := gochannel.CreateChannel(watermillLogger)
		if err != nil {
			panic(fmt.Errorf("failed to create in-memory pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(logger, pub, sub)
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermillLogger, kafka.Brokers(""), "approvals")
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(logger, pub, sub)
	default:
		panic("Unsupported event bus provider: " + provider)
	}
}
