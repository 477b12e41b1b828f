package billing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"

	"github.com/google/uuid"
)

// PaddleConfig holds configuration for the Paddle billing provider.
type PaddleConfig struct {
	APIKey        string `env:"PADDLE_API_KEY,required"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET,required"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

// PaddlePlanPrices maps plan types to Paddle price ids.
type PaddlePlanPrices map[string]string

// PaddleProvider implements Provider for Paddle. Paddle's webhook payloads
// do not share Stripe's envelope shape, so deployments using Paddle need a
// payload translation step in front of the Reconciler; this adapter covers
// the outbound calls and signature verification.
type PaddleProvider struct {
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
	config   PaddleConfig
	prices   PaddlePlanPrices
}

// NewPaddleProvider creates a new Paddle billing provider.
func NewPaddleProvider(config PaddleConfig, prices PaddlePlanPrices) (*PaddleProvider, error) {
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if config.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}

	var client *paddle.SDK
	var err error

	switch strings.ToLower(config.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(config.APIKey)
	case "production", "":
		client, err = paddle.New(config.APIKey)
	default:
		return nil, fmt.Errorf("invalid paddle environment: %s", config.Environment)
	}
	if err != nil {
		return nil, errors.Join(ErrProviderError, err)
	}

	return &PaddleProvider{
		client:   client,
		verifier: paddle.NewWebhookVerifier(config.WebhookSecret),
		config:   config,
		prices:   prices,
	}, nil
}

// CreateCustomer registers a Paddle customer tagged with the user id.
func (p *PaddleProvider) CreateCustomer(ctx context.Context, userID uuid.UUID, email string) (string, error) {
	customer, err := p.client.CustomersClient.CreateCustomer(ctx, &paddle.CreateCustomerRequest{
		Email: email,
		CustomData: paddle.CustomData{
			"user_id": userID.String(),
		},
	})
	if err != nil {
		return "", errors.Join(ErrProviderError, err)
	}
	return customer.ID, nil
}

// CreateCheckoutLink creates a hosted checkout transaction in Paddle.
func (p *PaddleProvider) CreateCheckoutLink(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error) {
	priceID, ok := p.prices[req.PlanType]
	if !ok {
		return nil, errors.Join(ErrProviderError,
			fmt.Errorf("no paddle price configured for plan %q", req.PlanType))
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  priceID,
		Quantity: 1,
	})

	transactionReq := &paddle.CreateTransactionRequest{
		Items: []paddle.CreateTransactionItems{*item},
		CustomData: paddle.CustomData{
			"user_id":   req.UserID.String(),
			"plan_type": req.PlanType,
		},
	}
	if req.CustomerID != "" {
		transactionReq.CustomerID = paddle.PtrTo(req.CustomerID)
	}
	if req.SuccessURL != "" {
		transactionReq.Checkout = &paddle.TransactionCheckout{
			URL: paddle.PtrTo(req.SuccessURL),
		}
	}

	transaction, err := p.client.TransactionsClient.CreateTransaction(ctx, transactionReq)
	if err != nil {
		return nil, errors.Join(ErrProviderError, err)
	}

	if transaction.Checkout == nil || transaction.Checkout.URL == nil || *transaction.Checkout.URL == "" {
		return nil, ErrNoCheckoutURL
	}

	return &CheckoutLink{
		URL:       *transaction.Checkout.URL,
		SessionID: transaction.ID,
		ExpiresAt: time.Now().Add(24 * time.Hour), // Paddle checkout links expire in 24 hours
	}, nil
}

// CustomerPortalLink returns a link to Paddle's customer portal scoped to
// the given subscription.
func (p *PaddleProvider) CustomerPortalLink(ctx context.Context, sub *Subscription) (*PortalLink, error) {
	if sub == nil || sub.ProviderCustomerID == "" {
		return nil, errors.Join(ErrProviderError, errors.New("provider customer id is required"))
	}

	session, err := p.client.CustomerPortalSessionsClient.CreateCustomerPortalSession(ctx,
		&paddle.CreateCustomerPortalSessionRequest{
			CustomerID:      sub.ProviderCustomerID,
			SubscriptionIDs: []string{sub.ProviderSubscriptionID},
		})
	if err != nil {
		return nil, errors.Join(ErrProviderError, err)
	}

	if session.URLs.General.Overview == "" {
		return nil, ErrNoPortalURL
	}

	return &PortalLink{
		URL:       session.URLs.General.Overview,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}, nil
}

// VerifyWebhook validates the Paddle-Signature header against the payload.
func (p *PaddleProvider) VerifyWebhook(payload []byte, signature string) error {
	req, err := http.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(payload))
	if err != nil {
		return errors.Join(ErrWebhookVerificationFailed, err)
	}
	req.Header.Set("Paddle-Signature", signature)

	valid, err := p.verifier.Verify(req)
	if err != nil {
		return errors.Join(ErrWebhookVerificationFailed, err)
	}
	if !valid {
		return ErrWebhookVerificationFailed
	}
	return nil
}
