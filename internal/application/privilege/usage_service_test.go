package privilege

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/careloop/backend/internal/domain/privilege"
	"github.com/careloop/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testClock = time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

type usageFixture struct {
	subRepo     *mockSubscriptionRepository
	grantRepo   *mockGrantRepository
	historyRepo *mockUsageRecordRepository
	service     *UsageService
}

// newUsageFixture builds a service whose resolver returns grant for
// subscriptionID and whose history store accepts every append.
func newUsageFixture(subscriptionID uuid.UUID, grant *privilege.Grant, ledger privilege.LedgerRepository) *usageFixture {
	logger := zap.NewNop()

	sub := activeSubscription(grant.PlanID)
	sub.ID = subscriptionID

	subRepo := new(mockSubscriptionRepository)
	subRepo.On("FindByID", mock.Anything, subscriptionID).Return(sub, nil)

	grantRepo := new(mockGrantRepository)
	grantRepo.On("FindByPlanAndName", mock.Anything, grant.PlanID, grant.PrivilegeName).Return(grant, nil)

	historyRepo := new(mockUsageRecordRepository)
	historyRepo.On("Append", mock.Anything, mock.Anything).Return(nil)

	resolver := NewGrantResolver(subRepo, grantRepo, nil, logger)
	limits := NewLimitEvaluator(historyRepo, logger)
	service := NewUsageService(resolver, limits, ledger, historyRepo, logger).
		WithClock(func() time.Time { return testClock })

	return &usageFixture{
		subRepo:     subRepo,
		grantRepo:   grantRepo,
		historyRepo: historyRepo,
		service:     service,
	}
}

func TestUsageService_GetRemaining(t *testing.T) {
	ctx := context.Background()
	subscriptionID := uuid.New()

	t.Run("disabled grant reports zero", func(t *testing.T) {
		grant := grantFor("basic-care", "home-visit", privilege.AllowedValueDisabled)
		fixture := newUsageFixture(subscriptionID, grant, newFakeLedgerRepository())

		remaining, err := fixture.service.GetRemaining(ctx, subscriptionID, "home-visit")
		require.NoError(t, err)
		assert.Equal(t, int64(0), remaining)
	})

	t.Run("unlimited grant reports the sentinel regardless of usage", func(t *testing.T) {
		grant := grantFor("premium-care", "nurse-chat", privilege.AllowedValueUnlimited)
		ledger := newFakeLedgerRepository()
		fixture := newUsageFixture(subscriptionID, grant, ledger)

		for i := 0; i < 3; i++ {
			decision, err := fixture.service.Use(ctx, subscriptionID, "nurse-chat", 1, "")
			require.NoError(t, err)
			require.True(t, decision.Allowed)
		}

		remaining, err := fixture.service.GetRemaining(ctx, subscriptionID, "nurse-chat")
		require.NoError(t, err)
		assert.Equal(t, privilege.UnlimitedRemaining, remaining)
	})

	t.Run("finite grant without ledger entry reports the full quota", func(t *testing.T) {
		grant := grantFor("family-care", "teleconsultation", 5)
		fixture := newUsageFixture(subscriptionID, grant, newFakeLedgerRepository())

		remaining, err := fixture.service.GetRemaining(ctx, subscriptionID, "teleconsultation")
		require.NoError(t, err)
		assert.Equal(t, int64(5), remaining)
	})

	t.Run("unknown privilege reports zero", func(t *testing.T) {
		grant := grantFor("family-care", "teleconsultation", 5)
		fixture := newUsageFixture(subscriptionID, grant, newFakeLedgerRepository())
		fixture.grantRepo.On("FindByPlanAndName", mock.Anything, "family-care", "home-visit").
			Return(nil, shared.ErrNotFound)

		remaining, err := fixture.service.GetRemaining(ctx, subscriptionID, "home-visit")
		require.NoError(t, err)
		assert.Equal(t, int64(0), remaining)
	})

	t.Run("reads are idempotent", func(t *testing.T) {
		grant := grantFor("family-care", "teleconsultation", 5)
		ledger := newFakeLedgerRepository()
		fixture := newUsageFixture(subscriptionID, grant, ledger)

		decision, err := fixture.service.Use(ctx, subscriptionID, "teleconsultation", 2, "")
		require.NoError(t, err)
		require.True(t, decision.Allowed)

		first, err := fixture.service.GetRemaining(ctx, subscriptionID, "teleconsultation")
		require.NoError(t, err)
		second, err := fixture.service.GetRemaining(ctx, subscriptionID, "teleconsultation")
		require.NoError(t, err)

		assert.Equal(t, int64(3), first)
		assert.Equal(t, first, second)
	})
}

func TestUsageService_Use(t *testing.T) {
	ctx := context.Background()
	subscriptionID := uuid.New()

	t.Run("end to end consumption until exhaustion", func(t *testing.T) {
		grant := grantFor("family-care", "teleconsultation", 2)
		fixture := newUsageFixture(subscriptionID, grant, newFakeLedgerRepository())

		decision, err := fixture.service.Use(ctx, subscriptionID, "teleconsultation", 1, "")
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Equal(t, int64(1), decision.Remaining)

		decision, err = fixture.service.Use(ctx, subscriptionID, "teleconsultation", 1, "")
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Equal(t, int64(0), decision.Remaining)

		decision, err = fixture.service.Use(ctx, subscriptionID, "teleconsultation", 1, "")
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, privilege.DenialReasonQuotaExhausted, decision.Reason)
		assert.Equal(t, int64(0), decision.Remaining)
	})

	t.Run("an oversized request leaves the counter untouched", func(t *testing.T) {
		grant := grantFor("family-care", "teleconsultation", 5)
		ledger := newFakeLedgerRepository()
		fixture := newUsageFixture(subscriptionID, grant, ledger)

		for i := 0; i < 3; i++ {
			decision, err := fixture.service.Use(ctx, subscriptionID, "teleconsultation", 1, "")
			require.NoError(t, err)
			require.True(t, decision.Allowed)
		}

		decision, err := fixture.service.Use(ctx, subscriptionID, "teleconsultation", 3, "")
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, privilege.DenialReasonQuotaExhausted, decision.Reason)

		// no partial increment
		remaining, err := fixture.service.GetRemaining(ctx, subscriptionID, "teleconsultation")
		require.NoError(t, err)
		assert.Equal(t, int64(2), remaining)
	})

	t.Run("disabled grant always denies", func(t *testing.T) {
		grant := grantFor("basic-care", "home-visit", privilege.AllowedValueDisabled)
		fixture := newUsageFixture(subscriptionID, grant, newFakeLedgerRepository())

		decision, err := fixture.service.Use(ctx, subscriptionID, "home-visit", 1, "")
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, privilege.DenialReasonGrantDisabled, decision.Reason)
	})

	t.Run("non-positive amount denies without touching storage", func(t *testing.T) {
		grant := grantFor("family-care", "teleconsultation", 5)
		fixture := newUsageFixture(subscriptionID, grant, newFakeLedgerRepository())

		for _, amount := range []int64{0, -2} {
			decision, err := fixture.service.Use(ctx, subscriptionID, "teleconsultation", amount, "")
			require.NoError(t, err)
			assert.False(t, decision.Allowed)
			assert.Equal(t, privilege.DenialReasonInvalidAmount, decision.Reason)
		}
		fixture.subRepo.AssertNotCalled(t, "FindByID")
	})

	t.Run("each success appends exactly one history record", func(t *testing.T) {
		grant := grantFor("family-care", "teleconsultation", 2)
		fixture := newUsageFixture(subscriptionID, grant, newFakeLedgerRepository())

		for i := 0; i < 3; i++ {
			_, err := fixture.service.Use(ctx, subscriptionID, "teleconsultation", 1, "")
			require.NoError(t, err)
		}

		// two successes, one denial
		fixture.historyRepo.AssertNumberOfCalls(t, "Append", 2)
	})

	t.Run("daily ceiling denies without consuming", func(t *testing.T) {
		grant := grantFor("family-care", "teleconsultation", 10).WithDailyLimit(2)
		subscriptionID := uuid.New()
		ledger := newFakeLedgerRepository()
		fixture := newUsageFixture(subscriptionID, grant, ledger)
		fixture.historyRepo.On("SumForBucket", mock.Anything, mock.Anything, privilege.BucketKindDay, "2026-08-28").
			Return(int64(2), nil)

		decision, err := fixture.service.Use(ctx, subscriptionID, "teleconsultation", 1, "")
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, privilege.DenialReasonDailyLimitExceeded, decision.Reason)

		remaining, err := fixture.service.GetRemaining(ctx, subscriptionID, "teleconsultation")
		require.NoError(t, err)
		assert.Equal(t, int64(10), remaining)
	})

	t.Run("storage failure surfaces as error not denial", func(t *testing.T) {
		grant := grantFor("family-care", "teleconsultation", 5)
		storageErr := errors.New("deadlock detected")

		entry, err := privilege.NewLedgerEntry(subscriptionID, grant, testClock)
		require.NoError(t, err)

		ledger := new(mockLedgerRepository)
		ledger.On("GetOrCreate", mock.Anything, subscriptionID, grant, testClock).Return(entry, nil)
		ledger.On("AtomicIncrement", mock.Anything, entry.ID, int64(1), testClock).Return(false, storageErr)

		fixture := newUsageFixture(subscriptionID, grant, ledger)

		_, err = fixture.service.Use(ctx, subscriptionID, "teleconsultation", 1, "")
		require.Error(t, err)
		assert.ErrorIs(t, err, storageErr)
	})

	t.Run("a failing history append does not revoke the consumption", func(t *testing.T) {
		grant := grantFor("family-care", "teleconsultation", 5)
		logger := zap.NewNop()

		sub := activeSubscription(grant.PlanID)
		sub.ID = subscriptionID
		subRepo := new(mockSubscriptionRepository)
		subRepo.On("FindByID", mock.Anything, subscriptionID).Return(sub, nil)
		grantRepo := new(mockGrantRepository)
		grantRepo.On("FindByPlanAndName", mock.Anything, grant.PlanID, grant.PrivilegeName).Return(grant, nil)
		historyRepo := new(mockUsageRecordRepository)
		historyRepo.On("Append", mock.Anything, mock.Anything).Return(errors.New("disk full"))

		resolver := NewGrantResolver(subRepo, grantRepo, nil, logger)
		service := NewUsageService(resolver, NewLimitEvaluator(historyRepo, logger), newFakeLedgerRepository(), historyRepo, logger).
			WithClock(func() time.Time { return testClock })

		decision, err := service.Use(ctx, subscriptionID, "teleconsultation", 1, "")
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Equal(t, int64(4), decision.Remaining)
	})
}

func TestUsageService_CanUse(t *testing.T) {
	ctx := context.Background()
	subscriptionID := uuid.New()

	t.Run("does not consume anything", func(t *testing.T) {
		grant := grantFor("family-care", "teleconsultation", 2)
		fixture := newUsageFixture(subscriptionID, grant, newFakeLedgerRepository())

		for i := 0; i < 5; i++ {
			decision, err := fixture.service.CanUse(ctx, subscriptionID, "teleconsultation", 1)
			require.NoError(t, err)
			assert.True(t, decision.Allowed)
			assert.Equal(t, int64(1), decision.Remaining)
		}

		remaining, err := fixture.service.GetRemaining(ctx, subscriptionID, "teleconsultation")
		require.NoError(t, err)
		assert.Equal(t, int64(2), remaining)
		fixture.historyRepo.AssertNotCalled(t, "Append")
	})

	t.Run("reports quota exhaustion", func(t *testing.T) {
		grant := grantFor("family-care", "teleconsultation", 2)
		fixture := newUsageFixture(subscriptionID, grant, newFakeLedgerRepository())

		decision, err := fixture.service.CanUse(ctx, subscriptionID, "teleconsultation", 3)
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, privilege.DenialReasonQuotaExhausted, decision.Reason)
		assert.Equal(t, int64(2), decision.Remaining)
	})

	t.Run("reports ineligible subscription", func(t *testing.T) {
		grant := grantFor("family-care", "teleconsultation", 2)
		cancelledID := uuid.New()
		cancelled := activeSubscription(grant.PlanID)
		cancelled.ID = cancelledID
		cancelled.Status = "cancelled"

		fixture := newUsageFixture(subscriptionID, grant, newFakeLedgerRepository())
		fixture.subRepo.On("FindByID", mock.Anything, cancelledID).Return(cancelled, nil)

		decision, err := fixture.service.CanUse(ctx, cancelledID, "teleconsultation", 1)
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, privilege.DenialReasonSubscriptionNotEligible, decision.Reason)
	})
}

func TestUsageService_ConcurrentUse(t *testing.T) {
	// With one unit of quota and many concurrent callers, exactly one
	// consumption may succeed.
	ctx := context.Background()
	subscriptionID := uuid.New()
	grant := grantFor("family-care", "teleconsultation", 1)
	fixture := newUsageFixture(subscriptionID, grant, newFakeLedgerRepository())

	const callers = 32
	var wg sync.WaitGroup
	results := make(chan bool, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decision, err := fixture.service.Use(ctx, subscriptionID, "teleconsultation", 1, "")
			if err != nil {
				results <- false
				return
			}
			results <- decision.Allowed
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for allowed := range results {
		if allowed {
			successes++
		}
	}
	assert.Equal(t, 1, successes, "exactly one concurrent consumption may win")

	remaining, err := fixture.service.GetRemaining(ctx, subscriptionID, "teleconsultation")
	require.NoError(t, err)
	assert.Equal(t, int64(0), remaining)
}

func TestUsageService_ListHistory(t *testing.T) {
	ctx := context.Background()
	subscriptionID := uuid.New()
	grant := grantFor("family-care", "teleconsultation", 5)

	t.Run("returns records for the ledger entry", func(t *testing.T) {
		ledger := newFakeLedgerRepository()
		fixture := newUsageFixture(subscriptionID, grant, ledger)

		decision, err := fixture.service.Use(ctx, subscriptionID, "teleconsultation", 1, "intake call")
		require.NoError(t, err)
		require.True(t, decision.Allowed)

		entry, err := ledger.FindBySubscriptionAndGrant(ctx, subscriptionID, grant.ID)
		require.NoError(t, err)

		record, err := privilege.NewUsageRecord(entry.ID, 1, testClock, "intake call")
		require.NoError(t, err)
		fixture.historyRepo.On("FindByLedgerEntry", mock.Anything, entry.ID, mock.Anything).
			Return([]*privilege.UsageRecord{record}, int64(1), nil)

		page, err := fixture.service.ListHistory(ctx, subscriptionID, "teleconsultation", privilege.DefaultUsageRecordFilter())
		require.NoError(t, err)
		assert.Equal(t, int64(1), page.Total)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "intake call", page.Items[0].Note)
	})

	t.Run("no ledger entry yields an empty page", func(t *testing.T) {
		fixture := newUsageFixture(subscriptionID, grant, newFakeLedgerRepository())

		page, err := fixture.service.ListHistory(ctx, subscriptionID, "teleconsultation", privilege.DefaultUsageRecordFilter())
		require.NoError(t, err)
		assert.Equal(t, int64(0), page.Total)
		assert.Empty(t, page.Items)
	})
}
