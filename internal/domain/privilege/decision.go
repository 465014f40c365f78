package privilege

import "math"

// UnlimitedRemaining is the sentinel returned by remaining-quota queries
// for unlimited grants.
const UnlimitedRemaining int64 = math.MaxInt64

// DenialReason identifies why a privilege operation was denied. Denials
// are ordinary results, not errors: callers branch on them routinely.
type DenialReason string

const (
	// DenialReasonNone means the operation was allowed
	DenialReasonNone DenialReason = ""

	// DenialReasonSubscriptionNotEligible means the subscription is
	// missing, soft-deleted, or in a status that denies usage
	DenialReasonSubscriptionNotEligible DenialReason = "subscription_not_eligible"

	// DenialReasonGrantNotFound means the plan does not grant the privilege
	DenialReasonGrantNotFound DenialReason = "grant_not_found"

	// DenialReasonGrantDisabled means the grant's allowed value is zero
	DenialReasonGrantDisabled DenialReason = "grant_disabled"

	// DenialReasonInvalidAmount means the requested amount was not positive
	DenialReasonInvalidAmount DenialReason = "invalid_amount"

	// DenialReasonDailyLimitExceeded means the daily sub-ceiling would be exceeded
	DenialReasonDailyLimitExceeded DenialReason = "daily_limit_exceeded"

	// DenialReasonWeeklyLimitExceeded means the weekly sub-ceiling would be exceeded
	DenialReasonWeeklyLimitExceeded DenialReason = "weekly_limit_exceeded"

	// DenialReasonMonthlyLimitExceeded means the monthly sub-ceiling would be exceeded
	DenialReasonMonthlyLimitExceeded DenialReason = "monthly_limit_exceeded"

	// DenialReasonQuotaExhausted means the total period quota is spent
	DenialReasonQuotaExhausted DenialReason = "quota_exhausted"
)

// String returns the string representation of DenialReason
func (r DenialReason) String() string {
	return string(r)
}

// Message returns the user-facing message for the denial reason
func (r DenialReason) Message() string {
	switch r {
	case DenialReasonNone:
		return "Allowed"
	case DenialReasonSubscriptionNotEligible:
		return "Your subscription is not active"
	case DenialReasonGrantNotFound:
		return "This benefit is not included in your plan"
	case DenialReasonGrantDisabled:
		return "This benefit is not available on your plan"
	case DenialReasonInvalidAmount:
		return "Requested amount must be positive"
	case DenialReasonDailyLimitExceeded:
		return "Daily limit reached for this benefit"
	case DenialReasonWeeklyLimitExceeded:
		return "Weekly limit reached for this benefit"
	case DenialReasonMonthlyLimitExceeded:
		return "Monthly limit reached for this benefit"
	case DenialReasonQuotaExhausted:
		return "No uses remaining in your plan for this benefit"
	default:
		return "Not allowed"
	}
}

// DenialReasonForBucket maps a time-window bucket kind to its denial reason
func DenialReasonForBucket(kind BucketKind) DenialReason {
	switch kind {
	case BucketKindDay:
		return DenialReasonDailyLimitExceeded
	case BucketKindWeek:
		return DenialReasonWeeklyLimitExceeded
	default:
		return DenialReasonMonthlyLimitExceeded
	}
}

// Decision is the outcome of a privilege usage check or consumption.
// Infrastructure failures are never folded into a Decision; they travel
// as separate errors so callers can tell an outage from an empty quota.
type Decision struct {
	Allowed   bool         `json:"allowed"`
	Reason    DenialReason `json:"reason,omitempty"`
	Remaining int64        `json:"remaining"`
}

// Allow creates an allowing decision with the remaining quota after the
// operation under consideration.
func Allow(remaining int64) Decision {
	return Decision{Allowed: true, Reason: DenialReasonNone, Remaining: remaining}
}

// Deny creates a denying decision
func Deny(reason DenialReason, remaining int64) Decision {
	return Decision{Allowed: false, Reason: reason, Remaining: remaining}
}
