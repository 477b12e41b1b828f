package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/google/uuid"
)

// StripeConfig holds configuration for the Stripe billing provider.
type StripeConfig struct {
	APIKey        string `env:"STRIPE_API_KEY,required"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET,required"`
}

// StripePlanPrices maps plan types to Stripe price ids. The values must
// match price objects configured in the Stripe dashboard.
type StripePlanPrices map[string]string

// StripeProvider implements Provider using the Stripe API. Stripe's event
// catalog is the vocabulary the Reconciler speaks natively, so webhook
// payloads pass through to ParseEvent without translation.
type StripeProvider struct {
	config StripeConfig
	prices StripePlanPrices
}

// NewStripeProvider creates a Stripe billing provider.
func NewStripeProvider(config StripeConfig, prices StripePlanPrices) (*StripeProvider, error) {
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if config.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}

	stripe.Key = config.APIKey

	return &StripeProvider{
		config: config,
		prices: prices,
	}, nil
}

// CreateCustomer registers a Stripe customer tagged with the user id so
// webhook payloads can be mapped back to the account.
func (p *StripeProvider) CreateCustomer(_ context.Context, userID uuid.UUID, email string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Metadata: map[string]string{
			"user_id": userID.String(),
		},
	}
	c, err := customer.New(params)
	if err != nil {
		return "", errors.Join(ErrProviderError, err)
	}
	return c.ID, nil
}

// CreateCheckoutLink creates a hosted Stripe Checkout session in
// subscription mode. The user and plan references travel in the
// subscription metadata, which is where subscription.created events expect
// to find them.
func (p *StripeProvider) CreateCheckoutLink(_ context.Context, req CheckoutRequest) (*CheckoutLink, error) {
	priceID, ok := p.prices[req.PlanType]
	if !ok {
		return nil, errors.Join(ErrProviderError,
			fmt.Errorf("no stripe price configured for plan %q", req.PlanType))
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				"user_id":   req.UserID.String(),
				"plan_type": req.PlanType,
			},
		},
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	} else if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}

	sess, err := checkoutsession.New(params)
	if err != nil {
		return nil, errors.Join(ErrProviderError, err)
	}
	if sess.URL == "" {
		return nil, ErrNoCheckoutURL
	}

	return &CheckoutLink{
		URL:       sess.URL,
		SessionID: sess.ID,
		ExpiresAt: time.Unix(sess.ExpiresAt, 0).UTC(),
	}, nil
}

// CustomerPortalLink creates a Stripe billing portal session.
func (p *StripeProvider) CustomerPortalLink(_ context.Context, sub *Subscription) (*PortalLink, error) {
	if sub == nil || sub.ProviderCustomerID == "" {
		return nil, errors.Join(ErrProviderError, errors.New("provider customer id is required"))
	}

	sess, err := portalsession.New(&stripe.BillingPortalSessionParams{
		Customer: stripe.String(sub.ProviderCustomerID),
	})
	if err != nil {
		return nil, errors.Join(ErrProviderError, err)
	}
	if sess.URL == "" {
		return nil, ErrNoPortalURL
	}

	return &PortalLink{
		URL:       sess.URL,
		ExpiresAt: time.Now().Add(24 * time.Hour), // portal links are short-lived
	}, nil
}

// VerifyWebhook validates the Stripe-Signature header against the payload.
func (p *StripeProvider) VerifyWebhook(payload []byte, signature string) error {
	if _, err := webhook.ConstructEvent(payload, signature, p.config.WebhookSecret); err != nil {
		return errors.Join(ErrWebhookVerificationFailed, err)
	}
	return nil
}
