package persistence

import (
	"context"
	"fmt"

	"github.com/careloop/backend/internal/domain/privilege"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormUsageRecordRepository implements privilege.UsageRecordRepository
// using GORM. The table is append-only; this repository exposes no
// update or delete.
type GormUsageRecordRepository struct {
	db *gorm.DB
}

// NewGormUsageRecordRepository creates a new GormUsageRecordRepository
func NewGormUsageRecordRepository(db *gorm.DB) *GormUsageRecordRepository {
	return &GormUsageRecordRepository{db: db}
}

// Append persists a new usage record
func (r *GormUsageRecordRepository) Append(ctx context.Context, record *privilege.UsageRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// SumForBucket returns the total amount consumed against a ledger entry
// within one bucket. Bucket keys are precomputed at write time, so this
// is an equality match on an indexed column.
func (r *GormUsageRecordRepository) SumForBucket(ctx context.Context, ledgerEntryID uuid.UUID, kind privilege.BucketKind, key string) (int64, error) {
	column, err := bucketColumn(kind)
	if err != nil {
		return 0, err
	}

	var total int64
	if err := r.db.WithContext(ctx).
		Model(&privilege.UsageRecord{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("ledger_entry_id = ? AND "+column+" = ?", ledgerEntryID, key).
		Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// FindByLedgerEntry retrieves usage records for a ledger entry, newest
// first, with total count
func (r *GormUsageRecordRepository) FindByLedgerEntry(ctx context.Context, ledgerEntryID uuid.UUID, filter privilege.UsageRecordFilter) ([]*privilege.UsageRecord, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&privilege.UsageRecord{}).
		Where("ledger_entry_id = ?", ledgerEntryID)

	if filter.StartTime != nil {
		query = query.Where("used_at >= ?", filter.StartTime.UTC())
	}
	if filter.EndTime != nil {
		query = query.Where("used_at < ?", filter.EndTime.UTC())
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 50
	}

	var records []*privilege.UsageRecord
	if err := query.
		Order("used_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&records).Error; err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// bucketColumn maps a bucket kind to its storage column. The mapping is
// closed here so callers can never inject column names.
func bucketColumn(kind privilege.BucketKind) (string, error) {
	switch kind {
	case privilege.BucketKindDay:
		return "day_bucket", nil
	case privilege.BucketKindWeek:
		return "week_bucket", nil
	case privilege.BucketKindMonth:
		return "month_bucket", nil
	default:
		return "", fmt.Errorf("unknown bucket kind: %s", kind)
	}
}
