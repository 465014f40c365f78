package privilege

import (
	"context"
	"fmt"
	"time"

	"github.com/careloop/backend/internal/domain/privilege"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LimitEvaluator checks a grant's optional day/week/month sub-ceilings
// against the usage already recorded in the matching buckets. Sub-ceilings
// are independent of the total period quota: passing all time windows
// still leaves the ledger's own quota check ahead.
type LimitEvaluator struct {
	historyRepo privilege.UsageRecordRepository
	logger      *zap.Logger
}

// NewLimitEvaluator creates a new LimitEvaluator
func NewLimitEvaluator(historyRepo privilege.UsageRecordRepository, logger *zap.Logger) *LimitEvaluator {
	return &LimitEvaluator{
		historyRepo: historyRepo,
		logger:      logger,
	}
}

// CheckTimeWindows evaluates the grant's sub-ceilings in day, week, month
// order and reports the first one the requested amount would exceed.
// ledgerEntryID may be uuid.Nil when no ledger entry exists yet, in which
// case no usage can have been recorded and all windows pass.
func (e *LimitEvaluator) CheckTimeWindows(ctx context.Context, ledgerEntryID uuid.UUID, grant *privilege.Grant, amount int64, now time.Time) (privilege.DenialReason, error) {
	if !grant.HasTimeWindowLimits() || ledgerEntryID == uuid.Nil {
		return privilege.DenialReasonNone, nil
	}

	windows := []struct {
		kind  privilege.BucketKind
		limit *int64
	}{
		{privilege.BucketKindDay, grant.DailyLimit},
		{privilege.BucketKindWeek, grant.WeeklyLimit},
		{privilege.BucketKindMonth, grant.MonthlyLimit},
	}

	for _, window := range windows {
		if window.limit == nil {
			continue
		}

		key := privilege.BucketKey(window.kind, now)
		sum, err := e.historyRepo.SumForBucket(ctx, ledgerEntryID, window.kind, key)
		if err != nil {
			e.logger.Error("Failed to sum usage bucket",
				zap.String("ledger_entry_id", ledgerEntryID.String()),
				zap.String("bucket_kind", window.kind.String()),
				zap.String("bucket_key", key),
				zap.Error(err))
			return privilege.DenialReasonNone, fmt.Errorf("sum %s bucket: %w", window.kind, err)
		}

		if sum+amount > *window.limit {
			e.logger.Debug("Time window limit exceeded",
				zap.String("ledger_entry_id", ledgerEntryID.String()),
				zap.String("bucket_kind", window.kind.String()),
				zap.Int64("used", sum),
				zap.Int64("requested", amount),
				zap.Int64("limit", *window.limit))
			return privilege.DenialReasonForBucket(window.kind), nil
		}
	}

	return privilege.DenialReasonNone, nil
}
