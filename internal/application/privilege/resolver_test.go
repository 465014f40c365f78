package privilege

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/careloop/backend/internal/domain/privilege"
	"github.com/careloop/backend/internal/domain/shared"
	"github.com/careloop/backend/internal/domain/subscription"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGrantResolver_Resolve(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	logger := zap.NewNop()

	t.Run("resolves grant for eligible subscription", func(t *testing.T) {
		sub := activeSubscription("family-care")
		grant := grantFor("family-care", "teleconsultation", 5)

		subRepo := new(mockSubscriptionRepository)
		grantRepo := new(mockGrantRepository)
		subRepo.On("FindByID", ctx, sub.ID).Return(sub, nil)
		grantRepo.On("FindByPlanAndName", ctx, "family-care", "teleconsultation").Return(grant, nil)

		resolver := NewGrantResolver(subRepo, grantRepo, nil, logger)
		resolution, err := resolver.Resolve(ctx, sub.ID, "teleconsultation", now)

		require.NoError(t, err)
		assert.True(t, resolution.Resolved())
		assert.Equal(t, grant, resolution.Grant)
		assert.Equal(t, sub, resolution.Subscription)
	})

	t.Run("denies missing subscription without error", func(t *testing.T) {
		unknownID := uuid.New()
		subRepo := new(mockSubscriptionRepository)
		subRepo.On("FindByID", ctx, unknownID).Return(nil, shared.ErrNotFound)

		resolver := NewGrantResolver(subRepo, new(mockGrantRepository), nil, logger)
		resolution, err := resolver.Resolve(ctx, unknownID, "teleconsultation", now)

		require.NoError(t, err)
		assert.False(t, resolution.Resolved())
		assert.Equal(t, privilege.DenialReasonSubscriptionNotEligible, resolution.Denial)
	})

	t.Run("denies ineligible statuses", func(t *testing.T) {
		for _, status := range []subscription.Status{
			subscription.StatusPaused,
			subscription.StatusCancelled,
			subscription.StatusPaymentFailed,
			subscription.StatusExpired,
		} {
			sub := activeSubscription("family-care")
			sub.Status = status

			subRepo := new(mockSubscriptionRepository)
			subRepo.On("FindByID", ctx, sub.ID).Return(sub, nil)

			resolver := NewGrantResolver(subRepo, new(mockGrantRepository), nil, logger)
			resolution, err := resolver.Resolve(ctx, sub.ID, "teleconsultation", now)

			require.NoError(t, err)
			assert.Equal(t, privilege.DenialReasonSubscriptionNotEligible, resolution.Denial,
				"status %s should deny", status)
		}
	})

	t.Run("denies soft-deleted subscription", func(t *testing.T) {
		sub := activeSubscription("family-care")
		deletedAt := now.Add(-time.Hour)
		sub.DeletedAt = &deletedAt

		subRepo := new(mockSubscriptionRepository)
		subRepo.On("FindByID", ctx, sub.ID).Return(sub, nil)

		resolver := NewGrantResolver(subRepo, new(mockGrantRepository), nil, logger)
		resolution, err := resolver.Resolve(ctx, sub.ID, "teleconsultation", now)

		require.NoError(t, err)
		assert.Equal(t, privilege.DenialReasonSubscriptionNotEligible, resolution.Denial)
	})

	t.Run("denies privilege absent from plan", func(t *testing.T) {
		sub := activeSubscription("basic-care")

		subRepo := new(mockSubscriptionRepository)
		grantRepo := new(mockGrantRepository)
		subRepo.On("FindByID", ctx, sub.ID).Return(sub, nil)
		grantRepo.On("FindByPlanAndName", ctx, "basic-care", "home-visit").Return(nil, shared.ErrNotFound)

		resolver := NewGrantResolver(subRepo, grantRepo, nil, logger)
		resolution, err := resolver.Resolve(ctx, sub.ID, "home-visit", now)

		require.NoError(t, err)
		assert.Equal(t, privilege.DenialReasonGrantNotFound, resolution.Denial)
	})

	t.Run("privilege name match is case-sensitive", func(t *testing.T) {
		sub := activeSubscription("family-care")

		subRepo := new(mockSubscriptionRepository)
		grantRepo := new(mockGrantRepository)
		subRepo.On("FindByID", ctx, sub.ID).Return(sub, nil)
		grantRepo.On("FindByPlanAndName", ctx, "family-care", "Teleconsultation").Return(nil, shared.ErrNotFound)

		resolver := NewGrantResolver(subRepo, grantRepo, nil, logger)
		resolution, err := resolver.Resolve(ctx, sub.ID, "Teleconsultation", now)

		require.NoError(t, err)
		assert.Equal(t, privilege.DenialReasonGrantNotFound, resolution.Denial)
		grantRepo.AssertCalled(t, "FindByPlanAndName", ctx, "family-care", "Teleconsultation")
	})

	t.Run("surfaces storage failure as error", func(t *testing.T) {
		storageErr := errors.New("connection refused")
		subscriptionID := uuid.New()

		subRepo := new(mockSubscriptionRepository)
		subRepo.On("FindByID", ctx, subscriptionID).Return(nil, storageErr)

		resolver := NewGrantResolver(subRepo, new(mockGrantRepository), nil, logger)
		_, err := resolver.Resolve(ctx, subscriptionID, "teleconsultation", now)

		require.Error(t, err)
		assert.ErrorIs(t, err, storageErr)
	})

	t.Run("serves repeated lookups from cache", func(t *testing.T) {
		sub := activeSubscription("family-care")
		grant := grantFor("family-care", "teleconsultation", 5)
		cache := newMemoryGrantCache()

		subRepo := new(mockSubscriptionRepository)
		grantRepo := new(mockGrantRepository)
		subRepo.On("FindByID", ctx, sub.ID).Return(sub, nil)
		grantRepo.On("FindByPlanAndName", ctx, "family-care", "teleconsultation").Return(grant, nil).Once()

		resolver := NewGrantResolver(subRepo, grantRepo, cache, logger)

		for i := 0; i < 3; i++ {
			resolution, err := resolver.Resolve(ctx, sub.ID, "teleconsultation", now)
			require.NoError(t, err)
			assert.True(t, resolution.Resolved())
		}

		grantRepo.AssertNumberOfCalls(t, "FindByPlanAndName", 1)
		assert.Equal(t, 2, cache.hits)
	})
}
