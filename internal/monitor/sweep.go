package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/invoscore/backend/internal/metrics"
	"github.com/invoscore/backend/internal/ports"
	"github.com/invoscore/backend/pkg/logger"
)

// Sweeper runs the monitor periodically over every buyer with an
// active credit limit. One buyer's failure never stops the pass, and
// the pass is cancellable between buyers.
type Sweeper struct {
	monitor   *Monitor
	limitRepo ports.CreditLimitRepository
	interval  time.Duration
	batchSize int
	tenantID  string
	log       *zap.Logger
}

func NewSweeper(monitor *Monitor, limitRepo ports.CreditLimitRepository, tenantID string, interval time.Duration, batchSize int) *Sweeper {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	if batchSize < 1 {
		batchSize = 50
	}
	return &Sweeper{
		monitor:   monitor,
		limitRepo: limitRepo,
		interval:  interval,
		batchSize: batchSize,
		tenantID:  tenantID,
		log:       logger.Named("sweeper"),
	}
}

// Run blocks until ctx is cancelled, sweeping on the configured interval.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("monitoring sweeper started",
		zap.Duration("interval", s.interval),
		zap.Int("batch_size", s.batchSize))

	for {
		select {
		case <-ctx.Done():
			s.log.Info("monitoring sweeper stopped")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

func (s *Sweeper) SweepOnce(ctx context.Context) {
	start := time.Now()

	buyers, err := s.limitRepo.ListActiveBuyers(ctx, s.tenantID)
	if err != nil {
		s.log.Error("failed to list buyers for sweep", zap.Error(err))
		return
	}

	processed, failed := 0, 0
	for _, buyerID := range buyers {
		if ctx.Err() != nil {
			s.log.Warn("sweep cancelled",
				zap.Int("processed", processed),
				zap.Int("remaining", len(buyers)-processed))
			return
		}

		if _, err := s.monitor.MonitorBuyer(ctx, buyerID, s.tenantID); err != nil {
			failed++
			metrics.SweepBuyers.WithLabelValues("error").Inc()
			s.log.Error("buyer monitoring failed during sweep",
				zap.String("buyer_id", buyerID), zap.Error(err))
			continue
		}
		processed++
		metrics.SweepBuyers.WithLabelValues("ok").Inc()
	}

	metrics.SweepDuration.Observe(time.Since(start).Seconds())
	s.log.Info("monitoring sweep completed",
		zap.Int("buyers", len(buyers)),
		zap.Int("processed", processed),
		zap.Int("failed", failed),
		zap.Duration("took", time.Since(start)))
}
