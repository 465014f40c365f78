package privilege

import (
	"fmt"
	"time"

	"github.com/careloop/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// BucketKind identifies the time window a bucket key aggregates over
type BucketKind string

const (
	BucketKindDay   BucketKind = "day"
	BucketKindWeek  BucketKind = "week"
	BucketKindMonth BucketKind = "month"
)

// String returns the string representation of BucketKind
func (k BucketKind) String() string {
	return string(k)
}

// IsValid returns true if the bucket kind is valid
func (k BucketKind) IsValid() bool {
	switch k {
	case BucketKindDay, BucketKindWeek, BucketKindMonth:
		return true
	}
	return false
}

// DayBucketKey returns the UTC day bucket key for t, e.g. "2026-08-28"
func DayBucketKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// WeekBucketKey returns the ISO week bucket key for t, e.g. "2026-W35".
// ISO weeks start on Monday, so 23:59:59 Sunday and 00:00:01 Monday land
// in different buckets.
func WeekBucketKey(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// MonthBucketKey returns the UTC calendar month bucket key for t, e.g. "2026-08"
func MonthBucketKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// BucketKey returns the key of the given kind for t
func BucketKey(kind BucketKind, t time.Time) string {
	switch kind {
	case BucketKindDay:
		return DayBucketKey(t)
	case BucketKindWeek:
		return WeekBucketKey(t)
	default:
		return MonthBucketKey(t)
	}
}

// UsageRecord documents one successful consumption against a ledger entry.
// Records are append-only: they are never updated or deleted by this
// subsystem, serving both as audit trail and as the source of truth for
// time-bucketed limit sums. Bucket keys are precomputed at write time so
// range queries reduce to equality matches.
type UsageRecord struct {
	shared.BaseEntity
	LedgerEntryID uuid.UUID `gorm:"type:uuid;not null;index"`
	Amount        int64     `gorm:"not null"`
	UsedAt        time.Time `gorm:"not null"`
	DayBucket     string    `gorm:"type:varchar(10);not null;index:idx_usage_day"`
	WeekBucket    string    `gorm:"type:varchar(8);not null;index:idx_usage_week"`
	MonthBucket   string    `gorm:"type:varchar(7);not null;index:idx_usage_month"`
	Note          string    `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (UsageRecord) TableName() string {
	return "privilege_usage_records"
}

// NewUsageRecord creates an immutable usage record for a consumption at usedAt
func NewUsageRecord(ledgerEntryID uuid.UUID, amount int64, usedAt time.Time, note string) (*UsageRecord, error) {
	if ledgerEntryID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_LEDGER_ENTRY", "Ledger entry ID cannot be empty")
	}
	if amount <= 0 {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Usage amount must be positive")
	}

	return &UsageRecord{
		BaseEntity:    shared.NewBaseEntity(),
		LedgerEntryID: ledgerEntryID,
		Amount:        amount,
		UsedAt:        usedAt.UTC(),
		DayBucket:     DayBucketKey(usedAt),
		WeekBucket:    WeekBucketKey(usedAt),
		MonthBucket:   MonthBucketKey(usedAt),
		Note:          note,
	}, nil
}

// UsageRecordFilter defines filtering options for usage record queries
type UsageRecordFilter struct {
	StartTime *time.Time
	EndTime   *time.Time
	Page      int
	PageSize  int
}

// DefaultUsageRecordFilter returns a filter with default values
func DefaultUsageRecordFilter() UsageRecordFilter {
	return UsageRecordFilter{
		Page:     1,
		PageSize: 50,
	}
}

// WithTimeRange sets the time range for the filter
func (f UsageRecordFilter) WithTimeRange(start, end time.Time) UsageRecordFilter {
	f.StartTime = &start
	f.EndTime = &end
	return f
}

// WithPagination sets pagination options
func (f UsageRecordFilter) WithPagination(page, pageSize int) UsageRecordFilter {
	f.Page = page
	f.PageSize = pageSize
	return f
}
