package entitlement

import "errors"

var (
	// ErrNoAccess means the user's plan does not include the feature at all
	// (or there is no plan granting access). Distinct from running out of
	// quota so callers can show an upgrade prompt instead of a usage meter.
	ErrNoAccess = errors.New("feature not available on current plan")

	// ErrUsageLimitExceeded means the feature is included but its per-period
	// allowance is used up.
	ErrUsageLimitExceeded = errors.New("usage limit exceeded")

	// ErrProviderNotConfigured is returned by the checkout and portal calls
	// when the service was built without a billing provider.
	ErrProviderNotConfigured = errors.New("billing provider not configured")
)
