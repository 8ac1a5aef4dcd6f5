package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tradeshop/api/internal/services"
)

const defaultSweepInterval = 24 * time.Hour

type staleOrderSweeper interface {
	SweepStale(ctx context.Context) (services.SweepReport, error)
}

// orderSweeper fails stale pending orders on a fixed interval until the context ends.
type orderSweeper struct {
	orders   staleOrderSweeper
	interval time.Duration
	logger   *zap.Logger
}

func (s orderSweeper) Run(ctx context.Context) error {
	if s.orders == nil {
		return nil
	}
	interval := s.interval
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s orderSweeper) runOnce(ctx context.Context) {
	logger := s.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	report, err := s.orders.SweepStale(ctx)
	if err != nil {
		logger.Error("order sweep failed", zap.Error(err))
		return
	}
	logger.Info("order sweep completed",
		zap.Int("scanned", report.Scanned),
		zap.Int("failed", report.Failed),
		zap.Int("errors", report.Errors),
	)
}
