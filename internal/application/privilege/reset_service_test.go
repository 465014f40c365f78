package privilege

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestResetService_ResetExpiredPeriods(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()

	t.Run("rolls only expired entries", func(t *testing.T) {
		ledger := newFakeLedgerRepository()
		now := time.Date(2026, 8, 28, 3, 0, 0, 0, time.UTC)

		expiredGrant := grantFor("family-care", "teleconsultation", 5)
		freshGrant := grantFor("family-care", "home-visit", 2)

		expiredSub := uuid.New()
		freshSub := uuid.New()

		expired, err := ledger.GetOrCreate(ctx, expiredSub, expiredGrant, now.AddDate(0, -2, 0))
		require.NoError(t, err)
		_, err = ledger.AtomicIncrement(ctx, expired.ID, 3, now.AddDate(0, -2, 0))
		require.NoError(t, err)

		fresh, err := ledger.GetOrCreate(ctx, freshSub, freshGrant, now.Add(-time.Hour))
		require.NoError(t, err)
		_, err = ledger.AtomicIncrement(ctx, fresh.ID, 1, now.Add(-time.Hour))
		require.NoError(t, err)

		service := NewResetService(ledger, logger).WithClock(func() time.Time { return now })
		count, err := service.ResetExpiredPeriods(ctx)

		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		rolled, err := ledger.FindBySubscriptionAndGrant(ctx, expiredSub, expiredGrant.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), rolled.UsedValue)
		assert.Equal(t, now, rolled.PeriodStart)

		untouched, err := ledger.FindBySubscriptionAndGrant(ctx, freshSub, freshGrant.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), untouched.UsedValue)
	})

	t.Run("propagates storage failure", func(t *testing.T) {
		storageErr := errors.New("connection lost")
		now := time.Now()

		ledger := new(mockLedgerRepository)
		ledger.On("ResetExpired", ctx, now).Return(int64(0), storageErr)

		service := NewResetService(ledger, logger).WithClock(func() time.Time { return now })
		_, err := service.ResetExpiredPeriods(ctx)

		assert.ErrorIs(t, err, storageErr)
	})
}
