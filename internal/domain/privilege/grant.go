package privilege

import (
	"time"

	"github.com/careloop/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Quota value modes for Grant.AllowedValue
const (
	// AllowedValueUnlimited marks a grant with no total quota ceiling
	AllowedValueUnlimited int64 = -1

	// AllowedValueDisabled marks a grant that can never be consumed
	AllowedValueDisabled int64 = 0
)

// Grant is the resolved configuration of a privilege for a plan: how many
// units the plan allows per period and which time-windowed sub-ceilings
// apply on top of the total quota. Exactly one grant exists per
// (plan, privilege name) pair.
type Grant struct {
	shared.BaseAggregateRoot
	PlanID        string        `gorm:"type:varchar(50);not null;uniqueIndex:idx_plan_privilege"`
	PrivilegeID   uuid.UUID     `gorm:"type:uuid;not null"`
	PrivilegeName string        `gorm:"type:varchar(100);not null;uniqueIndex:idx_plan_privilege"`
	AllowedValue  int64         `gorm:"not null;default:0"`
	PeriodLength  time.Duration `gorm:"not null;default:0"`
	DailyLimit    *int64
	WeeklyLimit   *int64
	MonthlyLimit  *int64
}

// TableName returns the table name for GORM
func (Grant) TableName() string {
	return "plan_privilege_grants"
}

// NewGrant creates a grant attaching a privilege to a plan.
// allowedValue is -1 (unlimited), 0 (disabled) or a positive quota per period.
func NewGrant(planID string, def *Definition, allowedValue int64) (*Grant, error) {
	if planID == "" {
		return nil, shared.NewDomainError("INVALID_PLAN", "Plan ID cannot be empty")
	}
	if def == nil {
		return nil, shared.NewDomainError("INVALID_PRIVILEGE", "Privilege definition is required")
	}
	if allowedValue < AllowedValueUnlimited {
		return nil, shared.NewDomainError("INVALID_ALLOWED_VALUE", "Allowed value must be -1 (unlimited), 0 (disabled) or positive")
	}

	return &Grant{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		PlanID:            planID,
		PrivilegeID:       def.ID,
		PrivilegeName:     def.Name,
		AllowedValue:      allowedValue,
	}, nil
}

// WithPeriodLength sets a custom ledger period. Zero keeps the default
// calendar-month period.
func (g *Grant) WithPeriodLength(length time.Duration) *Grant {
	if length >= 0 {
		g.PeriodLength = length
	}
	return g
}

// WithDailyLimit sets the daily sub-ceiling
func (g *Grant) WithDailyLimit(limit int64) *Grant {
	if limit > 0 {
		g.DailyLimit = &limit
	}
	return g
}

// WithWeeklyLimit sets the weekly sub-ceiling
func (g *Grant) WithWeeklyLimit(limit int64) *Grant {
	if limit > 0 {
		g.WeeklyLimit = &limit
	}
	return g
}

// WithMonthlyLimit sets the monthly sub-ceiling
func (g *Grant) WithMonthlyLimit(limit int64) *Grant {
	if limit > 0 {
		g.MonthlyLimit = &limit
	}
	return g
}

// IsUnlimited returns true if the grant has no total quota ceiling
func (g *Grant) IsUnlimited() bool {
	return g.AllowedValue == AllowedValueUnlimited
}

// IsDisabled returns true if the grant can never be consumed
func (g *Grant) IsDisabled() bool {
	return g.AllowedValue == AllowedValueDisabled
}

// HasTimeWindowLimits returns true if any day/week/month sub-ceiling is set
func (g *Grant) HasTimeWindowLimits() bool {
	return g.DailyLimit != nil || g.WeeklyLimit != nil || g.MonthlyLimit != nil
}

// PeriodEnd computes the end of a ledger period that starts at start.
// A zero PeriodLength means one calendar month.
func (g *Grant) PeriodEnd(start time.Time) time.Time {
	if g.PeriodLength == 0 {
		return start.AddDate(0, 1, 0)
	}
	return start.Add(g.PeriodLength)
}
