package billing

import "errors"

var (
	ErrSubscriptionNotFound      = errors.New("subscription not found")
	ErrSubscriptionAlreadyExists = errors.New("user already has a subscription")
	ErrUnknownStatus             = errors.New("unknown subscription status")

	// ErrEventRejected marks an event that failed boundary validation.
	// The delivery pipeline should log it and acknowledge the delivery;
	// retrying cannot make a malformed payload valid.
	ErrEventRejected = errors.New("billing event rejected")

	ErrFailedToSaveSubscription = errors.New("failed to save subscription")
	ErrFailedToLoadSubscription = errors.New("failed to load subscription")

	// Provider adapter errors.
	ErrMissingAPIKey             = errors.New("billing provider API key is required")
	ErrMissingWebhookSecret      = errors.New("billing provider webhook secret is required")
	ErrWebhookVerificationFailed = errors.New("webhook signature verification failed")
	ErrNoCheckoutURL             = errors.New("no checkout URL returned from provider")
	ErrNoPortalURL               = errors.New("no portal URL returned from provider")
	ErrProviderError             = errors.New("billing provider error")
)
