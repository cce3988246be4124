package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/approvals/pkg/lock"
)

// NewLocker returns a redis lock when redisURL is set and a process-local lock otherwise.
// The returned close function releases the redis connection.
func NewLocker(ctx context.Context, logger *slog.Logger, redisURL string) (lock.Locker, func() error) {
	if redisURL == "" {
		logger.InfoContext(ctx, "No redis configured, escalation sweeps are only single-flight within this process")

		return lock.NewLocal(), func() error { return nil }
	}

	locker, err := lock.NewRedisFromURL(ctx, redisURL)
	if err != nil {
		panic(fmt.Errorf("failed to create redis lock: %w", err))
	}

	return locker, locker.Close
}
