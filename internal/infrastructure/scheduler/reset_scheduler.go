package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PeriodResetter rolls expired ledger periods forward. Implemented by
// the privilege reset service.
type PeriodResetter interface {
	ResetExpiredPeriods(ctx context.Context) (int64, error)
}

// ResetSchedulerConfig holds configuration for the period reset sweep
type ResetSchedulerConfig struct {
	// Enabled determines if the scheduler is active
	Enabled bool

	// SweepInterval is how often expired ledger periods are rolled.
	// Consumption paths roll expired entries lazily on their own, so
	// the sweep only bounds how stale idle entries can get.
	SweepInterval time.Duration

	// SweepTimeout is the per-sweep context timeout
	SweepTimeout time.Duration
}

// DefaultResetSchedulerConfig returns default configuration
func DefaultResetSchedulerConfig() ResetSchedulerConfig {
	return ResetSchedulerConfig{
		Enabled:       true,
		SweepInterval: 10 * time.Minute,
		SweepTimeout:  time.Minute,
	}
}

// ResetScheduler periodically sweeps expired ledger periods
type ResetScheduler struct {
	resetter  PeriodResetter
	logger    *zap.Logger
	config    ResetSchedulerConfig
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewResetScheduler creates a new ResetScheduler
func NewResetScheduler(resetter PeriodResetter, logger *zap.Logger, config ResetSchedulerConfig) *ResetScheduler {
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultResetSchedulerConfig().SweepInterval
	}
	if config.SweepTimeout <= 0 {
		config.SweepTimeout = DefaultResetSchedulerConfig().SweepTimeout
	}
	return &ResetScheduler{
		resetter: resetter,
		logger:   logger,
		config:   config,
	}
}

// Start launches the sweep loop. Calling Start on a running scheduler
// is a no-op.
func (s *ResetScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if !s.config.Enabled {
		s.mu.Unlock()
		s.logger.Info("Period reset scheduler is disabled")
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.run(ctx)

	s.logger.Info("Period reset scheduler started",
		zap.Duration("sweep_interval", s.config.SweepInterval),
		zap.Duration("sweep_timeout", s.config.SweepTimeout),
	)
	return nil
}

// Stop gracefully stops the scheduler, waiting for an in-flight sweep
// until ctx expires
func (s *ResetScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Period reset scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Period reset scheduler stop timed out")
		return ctx.Err()
	}
}

func (s *ResetScheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	// One sweep at startup so a long-stopped instance catches up
	// without waiting a full interval
	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *ResetScheduler) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, s.config.SweepTimeout)
	defer cancel()

	if _, err := s.resetter.ResetExpiredPeriods(sweepCtx); err != nil {
		// Next tick retries; consumption paths stay correct meanwhile
		s.logger.Error("Period reset sweep failed", zap.Error(err))
	}
}
