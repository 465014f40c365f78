package privilege

import (
	"time"

	"github.com/careloop/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// LedgerEntry is the cumulative usage counter for one (subscription, grant)
// pair in the current period. It is created lazily on first use, mutated
// only through LedgerRepository.AtomicIncrement, and zeroed by the period
// reset sweep; it is never deleted.
//
// Invariant: for finite grants UsedValue never exceeds AllowedValueSnapshot,
// at any observable instant, including under concurrent consumption.
type LedgerEntry struct {
	shared.BaseAggregateRoot
	SubscriptionID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_subscription_grant"`
	GrantID              uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_subscription_grant"`
	UsedValue            int64     `gorm:"not null;default:0"`
	AllowedValueSnapshot int64     `gorm:"not null"`
	PeriodStart          time.Time `gorm:"not null"`
	PeriodEnd            time.Time `gorm:"not null;index"`
	LastUsedAt           *time.Time
}

// TableName returns the table name for GORM
func (LedgerEntry) TableName() string {
	return "privilege_ledger_entries"
}

// NewLedgerEntry creates a fresh ledger entry for the period starting at now.
// The grant's allowed value is snapshotted so later plan changes do not
// retroactively alter an open period.
func NewLedgerEntry(subscriptionID uuid.UUID, grant *Grant, now time.Time) (*LedgerEntry, error) {
	if subscriptionID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_SUBSCRIPTION", "Subscription ID cannot be empty")
	}
	if grant == nil {
		return nil, shared.NewDomainError("INVALID_GRANT", "Grant is required")
	}

	return &LedgerEntry{
		BaseAggregateRoot:    shared.NewBaseAggregateRoot(),
		SubscriptionID:       subscriptionID,
		GrantID:              grant.ID,
		UsedValue:            0,
		AllowedValueSnapshot: grant.AllowedValue,
		PeriodStart:          now,
		PeriodEnd:            grant.PeriodEnd(now),
	}, nil
}

// IsUnlimited returns true if the snapshotted quota has no ceiling
func (e *LedgerEntry) IsUnlimited() bool {
	return e.AllowedValueSnapshot == AllowedValueUnlimited
}

// IsDisabled returns true if the snapshotted quota is zero
func (e *LedgerEntry) IsDisabled() bool {
	return e.AllowedValueSnapshot == AllowedValueDisabled
}

// Remaining returns the units still consumable in the current period.
// Unlimited entries report the UnlimitedRemaining sentinel; the counter
// still accumulates for reporting but never gates consumption.
func (e *LedgerEntry) Remaining() int64 {
	if e.IsDisabled() {
		return 0
	}
	if e.IsUnlimited() {
		return UnlimitedRemaining
	}
	remaining := e.AllowedValueSnapshot - e.UsedValue
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CanConsume returns true if consuming amount would keep the entry within
// its snapshotted quota. This is an advisory check only: the authoritative
// decision is the storage-level conditional increment.
func (e *LedgerEntry) CanConsume(amount int64) bool {
	if amount <= 0 {
		return false
	}
	if e.IsDisabled() {
		return false
	}
	if e.IsUnlimited() {
		return true
	}
	return e.UsedValue+amount <= e.AllowedValueSnapshot
}

// IsExpired returns true if the entry's period has ended
func (e *LedgerEntry) IsExpired(now time.Time) bool {
	return !now.Before(e.PeriodEnd)
}
