package billing

import (
	"context"

	"github.com/google/uuid"
)

// Store persists subscriptions. Implementations enforce both uniqueness
// invariants at the storage layer: one row per user and one row per
// provider subscription id.
type Store interface {
	// UpsertByProviderID inserts the subscription if its provider id is
	// unseen, otherwise overwrites the existing row's mutable attributes.
	// Calling it twice with identical input yields the same stored row.
	// Inserting a second subscription for a user who already has one under
	// a different provider id fails with ErrSubscriptionAlreadyExists.
	// Each call is atomic; the returned value reflects the stored row.
	UpsertByProviderID(ctx context.Context, sub *Subscription) (*Subscription, error)

	// GetByUserID returns the user's subscription or ErrSubscriptionNotFound.
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Subscription, error)

	// GetByProviderID returns the subscription for a provider subscription
	// id or ErrSubscriptionNotFound.
	GetByProviderID(ctx context.Context, providerSubscriptionID string) (*Subscription, error)
}
