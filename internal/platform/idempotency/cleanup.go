package idempotency

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	defaultCleanupInterval = 15 * time.Minute
	defaultCleanupBatch    = 200
)

// Cleaner periodically purges expired records from stores without native expiry.
type Cleaner struct {
	Store    Store
	Interval time.Duration
	Batch    int
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Run purges expired records every interval until ctx is cancelled.
func (c Cleaner) Run(ctx context.Context) error {
	if c.Store == nil {
		return nil
	}
	interval := c.Interval
	if interval <= 0 {
		interval = defaultCleanupInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce drains expired records in batches and returns how many were removed.
func (c Cleaner) RunOnce(ctx context.Context) int {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := c.Clock
	if clock == nil {
		clock = time.Now
	}
	batch := c.Batch
	if batch <= 0 {
		batch = defaultCleanupBatch
	}

	total := 0
	for ctx.Err() == nil {
		removed, err := c.Store.CleanupExpired(ctx, clock().UTC(), batch)
		if err != nil {
			logger.Warn("idempotency cleanup failed", zap.Error(err))
			break
		}
		total += removed
		if removed < batch {
			break
		}
	}
	if total > 0 {
		logger.Info("idempotency cleanup", zap.Int("removed", total))
	}
	return total
}
