package confirmation

import (
	"context"
	"fmt"
	"time"

	cronv3 "github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Expirer is the part of Store the sweeper needs.
type Expirer interface {
	ExpirePending(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper periodically marks overdue pending confirmations as expired.
// Resolve already rejects expired rows on read; sweeping keeps the table tidy.
type Sweeper struct {
	store    Expirer
	interval time.Duration
	logger   *zap.Logger
	cron     *cronv3.Cron
	now      func() time.Time
}

// NewSweeper creates a sweeper running every interval.
func NewSweeper(store Expirer, interval time.Duration, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		logger:   logger,
		cron:     cronv3.New(),
		now:      time.Now,
	}
}

// Start schedules the sweep job and starts the scheduler.
func (s *Sweeper) Start() error {
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_, _ = s.Sweep(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule confirmation sweep: %w", err)
	}
	s.cron.Start()
	s.logger.Info("confirmation sweeper started", zap.Duration("interval", s.interval))
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// Sweep runs one expiry pass.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	n, err := s.store.ExpirePending(ctx, s.now())
	if err != nil {
		s.logger.Error("confirmation sweep failed", zap.Error(err))
		return n, err
	}
	if n > 0 {
		s.logger.Info("expired pending confirmations", zap.Int64("count", n))
	}
	return n, nil
}
