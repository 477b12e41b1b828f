package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Provider is the outbound interface to the billing provider. The core
// only consumes the identifiers these calls produce; subscription state
// itself always arrives through webhook events.
//
// Implementations wrap official provider SDKs and keep provider-specific
// quirks (customer id mapping, metadata fields, signature schemes) out of
// the rest of the application.
type Provider interface {
	// CreateCustomer registers the user with the provider and returns the
	// provider's customer id, tagged with the user id so webhook payloads
	// can be mapped back.
	CreateCustomer(ctx context.Context, userID uuid.UUID, email string) (string, error)

	// CreateCheckoutLink creates a hosted checkout session for a plan.
	CreateCheckoutLink(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error)

	// CustomerPortalLink returns a pre-authenticated link to the provider's
	// customer portal where users manage payment methods and cancellation.
	CustomerPortalLink(ctx context.Context, sub *Subscription) (*PortalLink, error)

	// VerifyWebhook checks the payload signature. It must be called before
	// a payload reaches the Reconciler; a failure means the payload cannot
	// be trusted and the delivery must be refused.
	VerifyWebhook(payload []byte, signature string) error
}

// CheckoutRequest contains data needed to create a checkout session.
type CheckoutRequest struct {
	UserID     uuid.UUID
	PlanType   string // plan identifier, mapped to the provider's price id
	CustomerID string // provider customer id, if already known
	Email      string // pre-fill billing email if known
	SuccessURL string
	CancelURL  string
}

// CheckoutLink represents a hosted checkout session.
type CheckoutLink struct {
	URL       string
	SessionID string
	ExpiresAt time.Time
}

// PortalLink represents a customer portal session.
type PortalLink struct {
	URL       string
	ExpiresAt time.Time
}
