package privilege

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/careloop/backend/internal/domain/privilege"
	"github.com/careloop/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UsageService orchestrates privilege usage checks and consumption:
// grant resolution, time-window evaluation, the ledger's atomic
// check-and-increment, and the append-only history trail.
//
// Business-rule denials travel as Decision values; the error return is
// reserved for storage failures so callers can tell an outage from an
// empty quota.
type UsageService struct {
	resolver    *GrantResolver
	limits      *LimitEvaluator
	ledgerRepo  privilege.LedgerRepository
	historyRepo privilege.UsageRecordRepository
	logger      *zap.Logger

	now func() time.Time
}

// NewUsageService creates a new UsageService
func NewUsageService(
	resolver *GrantResolver,
	limits *LimitEvaluator,
	ledgerRepo privilege.LedgerRepository,
	historyRepo privilege.UsageRecordRepository,
	logger *zap.Logger,
) *UsageService {
	return &UsageService{
		resolver:    resolver,
		limits:      limits,
		ledgerRepo:  ledgerRepo,
		historyRepo: historyRepo,
		logger:      logger,
		now:         time.Now,
	}
}

// WithClock overrides the service's clock. Intended for tests.
func (s *UsageService) WithClock(now func() time.Time) *UsageService {
	s.now = now
	return s
}

// GetRemaining returns the units of a privilege still consumable in the
// current period: 0 for ineligible subscriptions, unknown privileges and
// disabled grants, the UnlimitedRemaining sentinel for unlimited grants,
// and the full allowed value when no ledger entry exists yet or the
// previous period has ended.
func (s *UsageService) GetRemaining(ctx context.Context, subscriptionID uuid.UUID, privilegeName string) (int64, error) {
	now := s.now()

	resolution, err := s.resolver.Resolve(ctx, subscriptionID, privilegeName, now)
	if err != nil {
		return 0, err
	}
	if !resolution.Resolved() {
		return 0, nil
	}

	grant := resolution.Grant
	if grant.IsDisabled() {
		return 0, nil
	}
	if grant.IsUnlimited() {
		return privilege.UnlimitedRemaining, nil
	}

	entry, err := s.ledgerRepo.FindBySubscriptionAndGrant(ctx, subscriptionID, grant.ID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return grant.AllowedValue, nil
		}
		return 0, fmt.Errorf("find ledger entry: %w", err)
	}
	if entry.IsExpired(now) {
		// The reset sweep has not caught up yet; a fresh period starts
		// on the next consumption.
		return grant.AllowedValue, nil
	}

	return entry.Remaining(), nil
}

// CanUse reports whether consuming amount of a privilege would be allowed
// right now, without consuming anything. The returned decision carries the
// quota that would remain after such a consumption.
func (s *UsageService) CanUse(ctx context.Context, subscriptionID uuid.UUID, privilegeName string, amount int64) (privilege.Decision, error) {
	now := s.now()

	_, grant, decision, err := s.precheck(ctx, subscriptionID, privilegeName, amount, now)
	if err != nil || !decision.Allowed {
		return decision, err
	}

	entryID := uuid.Nil
	var entry *privilege.LedgerEntry
	entry, err = s.ledgerRepo.FindBySubscriptionAndGrant(ctx, subscriptionID, grant.ID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return privilege.Decision{}, fmt.Errorf("find ledger entry: %w", err)
	}
	if entry != nil && !entry.IsExpired(now) {
		entryID = entry.ID
	} else {
		entry = nil
	}

	if reason, werr := s.limits.CheckTimeWindows(ctx, entryID, grant, amount, now); werr != nil {
		return privilege.Decision{}, werr
	} else if reason != privilege.DenialReasonNone {
		return privilege.Deny(reason, s.remainingFor(grant, entry)), nil
	}

	if grant.IsUnlimited() {
		return privilege.Allow(privilege.UnlimitedRemaining), nil
	}

	remaining := s.remainingFor(grant, entry)
	if remaining < amount {
		return privilege.Deny(privilege.DenialReasonQuotaExhausted, remaining), nil
	}

	return privilege.Allow(remaining - amount), nil
}

// Use consumes amount of a privilege. On success the ledger counter is
// incremented atomically and a history record is appended; on any
// business-rule denial nothing is mutated and the decision names the
// first failing rule.
func (s *UsageService) Use(ctx context.Context, subscriptionID uuid.UUID, privilegeName string, amount int64, note string) (privilege.Decision, error) {
	now := s.now()

	_, grant, decision, err := s.precheck(ctx, subscriptionID, privilegeName, amount, now)
	if err != nil || !decision.Allowed {
		return decision, err
	}

	// The conditional increment needs a row to write against, so the
	// entry materializes before the window checks. A zeroed entry for a
	// denied attempt consumes nothing.
	entry, err := s.ledgerRepo.GetOrCreate(ctx, subscriptionID, grant, now)
	if err != nil {
		return privilege.Decision{}, fmt.Errorf("get or create ledger entry: %w", err)
	}

	if reason, werr := s.limits.CheckTimeWindows(ctx, entry.ID, grant, amount, now); werr != nil {
		return privilege.Decision{}, werr
	} else if reason != privilege.DenialReasonNone {
		return privilege.Deny(reason, s.remainingFor(grant, entry)), nil
	}

	ok, err := s.ledgerRepo.AtomicIncrement(ctx, entry.ID, amount, now)
	if err != nil {
		return privilege.Decision{}, fmt.Errorf("increment ledger entry: %w", err)
	}
	if !ok {
		// Lost to a concurrent consumer or quota already spent; refetch
		// for an accurate remaining count.
		remaining := s.remainingFor(grant, entry)
		if fresh, ferr := s.ledgerRepo.FindBySubscriptionAndGrant(ctx, subscriptionID, grant.ID); ferr == nil {
			remaining = s.remainingFor(grant, fresh)
		}
		return privilege.Deny(privilege.DenialReasonQuotaExhausted, remaining), nil
	}

	s.appendHistory(ctx, entry.ID, amount, now, note)

	s.logger.Info("Privilege consumed",
		zap.String("subscription_id", subscriptionID.String()),
		zap.String("privilege_name", privilegeName),
		zap.Int64("amount", amount))

	if grant.IsUnlimited() {
		return privilege.Allow(privilege.UnlimitedRemaining), nil
	}
	remaining := entry.AllowedValueSnapshot - (entry.UsedValue + amount)
	if remaining < 0 {
		remaining = 0
	}
	return privilege.Allow(remaining), nil
}

// ListHistory returns the usage trail for a subscription's privilege,
// newest first. Unlike the consumption path this is an audit read, so a
// missing subscription, grant or ledger entry is reported as an error.
func (s *UsageService) ListHistory(ctx context.Context, subscriptionID uuid.UUID, privilegeName string, filter privilege.UsageRecordFilter) (shared.Paginated[*privilege.UsageRecord], error) {
	var empty shared.Paginated[*privilege.UsageRecord]
	if filter.Page <= 0 || filter.PageSize <= 0 {
		defaults := privilege.DefaultUsageRecordFilter()
		if filter.Page <= 0 {
			filter.Page = defaults.Page
		}
		if filter.PageSize <= 0 {
			filter.PageSize = defaults.PageSize
		}
	}

	resolution, err := s.resolver.Resolve(ctx, subscriptionID, privilegeName, s.now())
	if err != nil {
		return empty, err
	}
	if resolution.Grant == nil {
		return empty, shared.NewDomainError("GRANT_NOT_FOUND", "Privilege is not granted to this subscription's plan")
	}

	entry, err := s.ledgerRepo.FindBySubscriptionAndGrant(ctx, subscriptionID, resolution.Grant.ID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NewPaginated([]*privilege.UsageRecord{}, 0, filter.Page, filter.PageSize), nil
		}
		return empty, fmt.Errorf("find ledger entry: %w", err)
	}

	records, total, err := s.historyRepo.FindByLedgerEntry(ctx, entry.ID, filter)
	if err != nil {
		return empty, fmt.Errorf("list usage records: %w", err)
	}
	return shared.NewPaginated(records, total, filter.Page, filter.PageSize), nil
}

// precheck runs the shared preconditions of CanUse and Use: amount
// validation and grant resolution. It returns an allowing decision with
// the grant when the checks pass.
func (s *UsageService) precheck(ctx context.Context, subscriptionID uuid.UUID, privilegeName string, amount int64, now time.Time) (*Resolution, *privilege.Grant, privilege.Decision, error) {
	if amount <= 0 {
		return nil, nil, privilege.Deny(privilege.DenialReasonInvalidAmount, 0), nil
	}

	resolution, err := s.resolver.Resolve(ctx, subscriptionID, privilegeName, now)
	if err != nil {
		return nil, nil, privilege.Decision{}, err
	}
	if !resolution.Resolved() {
		return resolution, nil, privilege.Deny(resolution.Denial, 0), nil
	}

	grant := resolution.Grant
	if grant.IsDisabled() {
		return resolution, grant, privilege.Deny(privilege.DenialReasonGrantDisabled, 0), nil
	}

	return resolution, grant, privilege.Allow(0), nil
}

// remainingFor computes the remaining quota from a grant and its entry,
// treating a missing or expired entry as an untouched period.
func (s *UsageService) remainingFor(grant *privilege.Grant, entry *privilege.LedgerEntry) int64 {
	if grant.IsDisabled() {
		return 0
	}
	if grant.IsUnlimited() {
		return privilege.UnlimitedRemaining
	}
	if entry == nil {
		return grant.AllowedValue
	}
	return entry.Remaining()
}

// appendHistory records a successful consumption. The increment has
// already committed, so a failing append is logged rather than surfaced:
// retrying the whole operation would double-consume.
func (s *UsageService) appendHistory(ctx context.Context, entryID uuid.UUID, amount int64, now time.Time, note string) {
	record, err := privilege.NewUsageRecord(entryID, amount, now, note)
	if err != nil {
		s.logger.Error("Failed to build usage record", zap.Error(err))
		return
	}
	if err := s.historyRepo.Append(ctx, record); err != nil {
		s.logger.Error("Failed to append usage record",
			zap.String("ledger_entry_id", entryID.String()),
			zap.Int64("amount", amount),
			zap.Error(err))
	}
}
