package subscription

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the read-side interface for subscription lookups.
// This service never mutates subscriptions.
type Repository interface {
	// FindByID retrieves a subscription by its ID, including soft-deleted
	// ones so callers can distinguish "gone" from "never existed".
	FindByID(ctx context.Context, id uuid.UUID) (*Subscription, error)
}
