package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ExpiredDeleter removes ledger rows that expired before a cutoff
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Janitor periodically purges expired OTP, reset and refresh ledger rows
type Janitor struct {
	ledgers  map[string]ExpiredDeleter
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewJanitor(ledgers map[string]ExpiredDeleter, interval time.Duration, logger *zap.Logger) *Janitor {
	return &Janitor{
		ledgers:  ledgers,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Run sweeps once immediately and then on every tick until ctx is done
func (j *Janitor) Run(ctx context.Context) {
	if j.interval <= 0 {
		j.logger.Info("Janitor disabled")
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		j.Sweep(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep deletes expired rows from every ledger. A failing ledger does not stop the others.
func (j *Janitor) Sweep(ctx context.Context) {
	cutoff := j.now()
	for name, ledger := range j.ledgers {
		n, err := ledger.DeleteExpired(ctx, cutoff)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			j.logger.Error("Failed to purge expired rows", zap.String("ledger", name), zap.Error(err))
			continue
		}
		if n > 0 {
			j.logger.Info("Purged expired rows", zap.String("ledger", name), zap.Int64("rows", n))
		}
	}
}
