package privilege

import (
	"context"
	"fmt"
	"time"

	"github.com/careloop/backend/internal/domain/privilege"
	"go.uber.org/zap"
)

// ResetService rolls expired ledger periods forward. It is driven by the
// periodic scheduler but can also be invoked directly, e.g. from an
// operations endpoint after a plan migration.
type ResetService struct {
	ledgerRepo privilege.LedgerRepository
	logger     *zap.Logger

	now func() time.Time
}

// NewResetService creates a new ResetService
func NewResetService(ledgerRepo privilege.LedgerRepository, logger *zap.Logger) *ResetService {
	return &ResetService{
		ledgerRepo: ledgerRepo,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock overrides the service's clock. Intended for tests.
func (s *ResetService) WithClock(now func() time.Time) *ResetService {
	s.now = now
	return s
}

// ResetExpiredPeriods zeroes every ledger entry whose period has ended
// and starts its next period, returning how many entries were reset.
// The sweep uses the ledger's conditional-write primitive, so it cannot
// race with in-flight consumption of the same entries.
func (s *ResetService) ResetExpiredPeriods(ctx context.Context) (int64, error) {
	now := s.now()

	count, err := s.ledgerRepo.ResetExpired(ctx, now)
	if err != nil {
		s.logger.Error("Period reset sweep failed", zap.Error(err))
		return 0, fmt.Errorf("reset expired ledger entries: %w", err)
	}

	if count > 0 {
		s.logger.Info("Period reset sweep completed",
			zap.Int64("entries_reset", count),
			zap.Time("as_of", now))
	}
	return count, nil
}
