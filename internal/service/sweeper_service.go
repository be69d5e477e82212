package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/famcare-id/famcare-api/pkg/config"
)

type expiredHoldReleaser interface {
	ReleaseExpiredHolds(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// SweeperService reclaims holds whose expiry has passed, returning their
// slots to free. It is the only writer that releases holds in bulk; the
// CAS in the booking path prevents a racing confirm from resurrecting a
// slot the sweeper just freed.
type SweeperService struct {
	slots   expiredHoldReleaser
	logger  *zap.Logger
	metrics *MetricsService
	cfg     config.BookingConfig
	now     func() time.Time
}

// NewSweeperService creates a new sweeper service instance.
func NewSweeperService(slots expiredHoldReleaser, logger *zap.Logger, metrics *MetricsService, cfg config.BookingConfig) *SweeperService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SweeperService{
		slots:   slots,
		logger:  logger,
		metrics: metrics,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Start runs the sweep loop until the context is cancelled.
func (s *SweeperService) Start(ctx context.Context) {
	interval := s.cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		s.logger.Info("hold sweeper started", zap.Duration("interval", interval))
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("hold sweeper stopped")
				return
			case <-ticker.C:
				s.SweepOnce(ctx)
			}
		}
	}()
}

// SweepOnce releases one batch of expired holds and reports how many
// slots were freed.
func (s *SweeperService) SweepOnce(ctx context.Context) int64 {
	released, err := s.slots.ReleaseExpiredHolds(ctx, s.now(), s.cfg.SweepBatchSize)
	if err != nil {
		s.logger.Error("failed to release expired holds", zap.Error(err))
		return 0
	}
	if released > 0 {
		s.metrics.RecordHoldsExpired(released)
		s.logger.Info("expired holds released", zap.Int64("count", released))
	}
	return released
}
