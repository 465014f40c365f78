package subscription

import (
	"time"

	"github.com/careloop/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Status represents the lifecycle status of a subscription.
// Transitions between statuses are owned by the billing lifecycle
// component; this package only answers eligibility questions.
type Status string

const (
	StatusActive        Status = "active"
	StatusTrial         Status = "trial"
	StatusPaused        Status = "paused"
	StatusCancelled     Status = "cancelled"
	StatusPaymentFailed Status = "payment_failed"
	StatusExpired       Status = "expired"
)

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// IsValid returns true if the status is a known status
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusTrial, StatusPaused, StatusCancelled, StatusPaymentFailed, StatusExpired:
		return true
	}
	return false
}

// CanUsePrivileges returns true if subscriptions in this status may
// consume plan privileges. Only active and trial subscriptions qualify.
func (s Status) CanUsePrivileges() bool {
	return s == StatusActive || s == StatusTrial
}

// Subscription represents a member's subscription to a plan.
// It is read-only inside this service: CRUD and billing-cycle math live
// in the subscription lifecycle component.
type Subscription struct {
	shared.BaseAggregateRoot
	MemberID  uuid.UUID  `gorm:"type:uuid;not null;index"`
	PlanID    string     `gorm:"type:varchar(50);not null;index"`
	Status    Status     `gorm:"type:varchar(20);not null;default:'active'"`
	StartsAt  time.Time  `gorm:"not null"`
	ExpiresAt *time.Time `gorm:"index"`
	DeletedAt *time.Time `gorm:"index"`
}

// TableName returns the table name for GORM
func (Subscription) TableName() string {
	return "subscriptions"
}

// IsDeleted returns true if the subscription has been soft-deleted
func (s *Subscription) IsDeleted() bool {
	return s.DeletedAt != nil
}

// IsEligible returns true if the subscription may consume privileges now.
// A subscription is eligible when it is not soft-deleted, its status
// permits usage, and it has not passed its expiry date.
func (s *Subscription) IsEligible(now time.Time) bool {
	if s.IsDeleted() {
		return false
	}
	if !s.Status.CanUsePrivileges() {
		return false
	}
	if s.ExpiresAt != nil && !now.Before(*s.ExpiresAt) {
		return false
	}
	return true
}
