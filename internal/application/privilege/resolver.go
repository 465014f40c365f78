package privilege

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/careloop/backend/internal/domain/privilege"
	"github.com/careloop/backend/internal/domain/shared"
	"github.com/careloop/backend/internal/domain/subscription"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GrantCache caches resolved grants per (plan, privilege name). Grants
// change rarely and are read on every privilege check, so cache misses
// fall through to the repository and writes after catalog changes go
// through InvalidatePlan.
type GrantCache interface {
	// Get returns the cached grant for a plan and privilege name
	Get(ctx context.Context, planID, privilegeName string) (*privilege.Grant, bool)

	// Set caches a grant under its own plan and privilege name
	Set(ctx context.Context, grant *privilege.Grant)

	// InvalidatePlan drops every cached grant for a plan
	InvalidatePlan(ctx context.Context, planID string)
}

// Resolution is the outcome of resolving a privilege for a subscription.
// When Denial is set, Subscription and Grant may be nil; a denial is an
// ordinary result, not an error.
type Resolution struct {
	Subscription *subscription.Subscription
	Grant        *privilege.Grant
	Denial       privilege.DenialReason
}

// Resolved returns true if a grant was found for an eligible subscription
func (r *Resolution) Resolved() bool {
	return r.Denial == privilege.DenialReasonNone
}

// GrantResolver is the single authorization gate for privilege usage:
// it verifies the subscription is eligible and finds the grant its plan
// carries for the requested privilege name. It never mutates state.
type GrantResolver struct {
	subscriptionRepo subscription.Repository
	grantRepo        privilege.GrantRepository
	cache            GrantCache
	logger           *zap.Logger
}

// NewGrantResolver creates a new GrantResolver. cache may be nil.
func NewGrantResolver(
	subscriptionRepo subscription.Repository,
	grantRepo privilege.GrantRepository,
	cache GrantCache,
	logger *zap.Logger,
) *GrantResolver {
	return &GrantResolver{
		subscriptionRepo: subscriptionRepo,
		grantRepo:        grantRepo,
		cache:            cache,
		logger:           logger,
	}
}

// Resolve finds the grant for a subscription and privilege name
// (case-sensitive exact match). A missing, deleted, expired or
// ineligible subscription and a privilege absent from the plan all
// produce a denial; only storage failures produce an error.
func (r *GrantResolver) Resolve(ctx context.Context, subscriptionID uuid.UUID, privilegeName string, now time.Time) (*Resolution, error) {
	sub, err := r.subscriptionRepo.FindByID(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return &Resolution{Denial: privilege.DenialReasonSubscriptionNotEligible}, nil
		}
		r.logger.Error("Failed to find subscription",
			zap.String("subscription_id", subscriptionID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("find subscription: %w", err)
	}

	if !sub.IsEligible(now) {
		r.logger.Debug("Subscription not eligible for privilege usage",
			zap.String("subscription_id", subscriptionID.String()),
			zap.String("status", sub.Status.String()))
		return &Resolution{Subscription: sub, Denial: privilege.DenialReasonSubscriptionNotEligible}, nil
	}

	if r.cache != nil {
		if grant, ok := r.cache.Get(ctx, sub.PlanID, privilegeName); ok {
			return &Resolution{Subscription: sub, Grant: grant}, nil
		}
	}

	grant, err := r.grantRepo.FindByPlanAndName(ctx, sub.PlanID, privilegeName)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return &Resolution{Subscription: sub, Denial: privilege.DenialReasonGrantNotFound}, nil
		}
		r.logger.Error("Failed to find grant",
			zap.String("plan_id", sub.PlanID),
			zap.String("privilege_name", privilegeName),
			zap.Error(err))
		return nil, fmt.Errorf("find grant: %w", err)
	}

	if r.cache != nil {
		r.cache.Set(ctx, grant)
	}

	return &Resolution{Subscription: sub, Grant: grant}, nil
}
