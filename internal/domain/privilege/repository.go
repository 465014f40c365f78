package privilege

import (
	"context"
	"time"

	"github.com/careloop/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// DefinitionRepository defines the interface for the privilege catalog
type DefinitionRepository interface {
	// Save persists a new privilege definition
	Save(ctx context.Context, def *Definition) error

	// Update updates an existing privilege definition
	Update(ctx context.Context, def *Definition) error

	// FindByID retrieves a definition by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Definition, error)

	// FindByName retrieves a definition by its stable name (exact match)
	FindByName(ctx context.Context, name string) (*Definition, error)

	// List retrieves definitions matching the filter, with total count.
	// Filter.Search matches name and display name; Filters["status"]
	// restricts to a DefinitionStatus.
	List(ctx context.Context, filter shared.Filter) ([]*Definition, int64, error)
}

// GrantRepository defines the interface for plan privilege grants
type GrantRepository interface {
	// Save creates or replaces the grant for (grant.PlanID, grant.PrivilegeName)
	Save(ctx context.Context, grant *Grant) error

	// FindByID retrieves a grant by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Grant, error)

	// FindByPlan retrieves all grants for a plan
	FindByPlan(ctx context.Context, planID string) ([]*Grant, error)

	// FindByPlanAndName retrieves the grant for a plan and privilege name
	// (case-sensitive exact match)
	FindByPlanAndName(ctx context.Context, planID, privilegeName string) (*Grant, error)

	// Delete removes a grant
	Delete(ctx context.Context, id uuid.UUID) error
}

// LedgerRepository defines the interface for privilege ledger entries.
// It is the only component allowed to mutate them.
type LedgerRepository interface {
	// FindBySubscriptionAndGrant retrieves the ledger entry for a
	// (subscription, grant) pair
	FindBySubscriptionAndGrant(ctx context.Context, subscriptionID, grantID uuid.UUID) (*LedgerEntry, error)

	// GetOrCreate retrieves the ledger entry for (subscriptionID, grant),
	// creating a zeroed entry for the period starting at now if none
	// exists. An entry whose period has already ended is rolled into a
	// fresh period before being returned. Safe under concurrent first
	// use of the same pair.
	GetOrCreate(ctx context.Context, subscriptionID uuid.UUID, grant *Grant, now time.Time) (*LedgerEntry, error)

	// AtomicIncrement adds amount to the entry's counter only if the
	// result stays within the snapshotted quota (or the quota is
	// unlimited), as one conditional write. Returns false without
	// mutating anything when the quota would be exceeded.
	AtomicIncrement(ctx context.Context, entryID uuid.UUID, amount int64, now time.Time) (bool, error)

	// ResetExpired zeroes the counter and rolls the period forward for
	// every entry whose period has ended, returning the number of
	// entries reset. Uses the same conditional-write primitive as
	// AtomicIncrement so it cannot race with in-flight consumption.
	ResetExpired(ctx context.Context, now time.Time) (int64, error)
}

// UsageRecordRepository defines the interface for the append-only usage log
type UsageRecordRepository interface {
	// Append persists a new usage record. Records are immutable once written.
	Append(ctx context.Context, record *UsageRecord) error

	// SumForBucket returns the total amount consumed against a ledger
	// entry within one day/week/month bucket
	SumForBucket(ctx context.Context, ledgerEntryID uuid.UUID, kind BucketKind, key string) (int64, error)

	// FindByLedgerEntry retrieves usage records for a ledger entry,
	// newest first, with total count
	FindByLedgerEntry(ctx context.Context, ledgerEntryID uuid.UUID, filter UsageRecordFilter) ([]*UsageRecord, int64, error)
}
