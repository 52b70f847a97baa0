package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const DefaultInterval = 30 * time.Minute

// Purger удаляет просроченные коды входа и сессии
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

type Housekeeping struct {
	purger   Purger
	interval time.Duration
	logger   *zap.Logger
}

func NewHousekeeping(purger Purger, interval time.Duration, logger *zap.Logger) *Housekeeping {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Housekeeping{purger: purger, interval: interval, logger: logger}
}

// Run чистит базу сразу и затем каждые interval, пока ctx не отменён
func (h *Housekeeping) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.logger.Info("housekeeping started", zap.Duration("interval", h.interval))
	for {
		h.RunOnce(ctx)
		select {
		case <-ctx.Done():
			h.logger.Info("housekeeping stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (h *Housekeeping) RunOnce(ctx context.Context) {
	n, err := h.purger.PurgeExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			h.logger.Error("housekeeping purge failed", zap.Error(err))
		}
		return
	}
	if n > 0 {
		h.logger.Info("expired auth data purged", zap.Int64("rows", n))
	}
}
