package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/careloop/backend/internal/domain/privilege"
	"github.com/careloop/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormLedgerRepository implements privilege.LedgerRepository using GORM.
//
// The quota invariant is enforced here, not in application code: the
// increment is a single conditional UPDATE whose WHERE clause re-checks
// the quota, so two concurrent consumers can never both pass a
// read-then-write race. RowsAffected tells whether the write won.
type GormLedgerRepository struct {
	db *gorm.DB
}

// NewGormLedgerRepository creates a new GormLedgerRepository
func NewGormLedgerRepository(db *gorm.DB) *GormLedgerRepository {
	return &GormLedgerRepository{db: db}
}

// FindBySubscriptionAndGrant finds the ledger entry for a (subscription, grant) pair
func (r *GormLedgerRepository) FindBySubscriptionAndGrant(ctx context.Context, subscriptionID, grantID uuid.UUID) (*privilege.LedgerEntry, error) {
	var entry privilege.LedgerEntry
	if err := r.db.WithContext(ctx).
		Where("subscription_id = ? AND grant_id = ?", subscriptionID, grantID).
		First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// GetOrCreate returns the ledger entry for (subscriptionID, grant),
// creating it if absent and rolling it into a fresh period if expired.
// ON CONFLICT DO NOTHING handles concurrent first use: the loser of the
// insert race falls back to reading the winner's row.
func (r *GormLedgerRepository) GetOrCreate(ctx context.Context, subscriptionID uuid.UUID, grant *privilege.Grant, now time.Time) (*privilege.LedgerEntry, error) {
	entry, err := r.FindBySubscriptionAndGrant(ctx, subscriptionID, grant.ID)
	if err == nil {
		if !entry.IsExpired(now) {
			return entry, nil
		}
		if err := r.rollPeriod(ctx, entry, grant, now); err != nil {
			return nil, err
		}
		return r.FindBySubscriptionAndGrant(ctx, subscriptionID, grant.ID)
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	entry, err = privilege.NewLedgerEntry(subscriptionID, grant, now)
	if err != nil {
		return nil, err
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "subscription_id"}, {Name: "grant_id"}},
			DoNothing: true,
		}).
		Create(entry)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		// Lost the insert race; the concurrent creator's row is authoritative
		return r.FindBySubscriptionAndGrant(ctx, subscriptionID, grant.ID)
	}
	return entry, nil
}

// rollPeriod starts a fresh period for an expired entry. The WHERE
// clause pins the old period end so concurrent rollers apply the roll
// exactly once; the snapshot is refreshed from the current grant.
func (r *GormLedgerRepository) rollPeriod(ctx context.Context, entry *privilege.LedgerEntry, grant *privilege.Grant, now time.Time) error {
	return r.db.WithContext(ctx).
		Model(&privilege.LedgerEntry{}).
		Where("id = ? AND period_end = ?", entry.ID, entry.PeriodEnd).
		Updates(map[string]interface{}{
			"used_value":             0,
			"allowed_value_snapshot": grant.AllowedValue,
			"period_start":           now,
			"period_end":             grant.PeriodEnd(now),
			"updated_at":             now,
		}).Error
}

// AtomicIncrement adds amount to the entry's counter as one conditional
// write: the row is touched only if the period is still open and the
// result stays within the snapshotted quota (or the quota is unlimited).
// Returns false, without mutating anything, when the condition fails.
func (r *GormLedgerRepository) AtomicIncrement(ctx context.Context, entryID uuid.UUID, amount int64, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&privilege.LedgerEntry{}).
		Where("id = ? AND period_end > ? AND (allowed_value_snapshot = ? OR used_value + ? <= allowed_value_snapshot)",
			entryID, now, privilege.AllowedValueUnlimited, amount).
		Updates(map[string]interface{}{
			"used_value":   gorm.Expr("used_value + ?", amount),
			"last_used_at": now,
			"updated_at":   now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ResetExpired rolls every expired ledger entry into a fresh period.
// Each entry is rolled with the same pinned-period conditional write as
// the consumption path, so a sweep cannot clobber an in-flight roll or
// increment; entries whose grant has been deleted are left frozen.
func (r *GormLedgerRepository) ResetExpired(ctx context.Context, now time.Time) (int64, error) {
	var expired []*privilege.LedgerEntry
	if err := r.db.WithContext(ctx).
		Where("period_end <= ?", now).
		Find(&expired).Error; err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}

	grants := make(map[uuid.UUID]*privilege.Grant)
	var count int64
	for _, entry := range expired {
		grant, ok := grants[entry.GrantID]
		if !ok {
			var g privilege.Grant
			if err := r.db.WithContext(ctx).First(&g, "id = ?", entry.GrantID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					continue
				}
				return count, err
			}
			grant = &g
			grants[entry.GrantID] = grant
		}

		result := r.db.WithContext(ctx).
			Model(&privilege.LedgerEntry{}).
			Where("id = ? AND period_end = ?", entry.ID, entry.PeriodEnd).
			Updates(map[string]interface{}{
				"used_value":             0,
				"allowed_value_snapshot": grant.AllowedValue,
				"period_start":           now,
				"period_end":             grant.PeriodEnd(now),
				"updated_at":             now,
			})
		if result.Error != nil {
			return count, result.Error
		}
		count += result.RowsAffected
	}
	return count, nil
}
