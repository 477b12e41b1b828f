package entitlement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/entitlement/pkg/billing"
	"github.com/dmitrymomot/entitlement/pkg/quota"
	"github.com/dmitrymomot/entitlement/pkg/usage"
)

// Service is the single entry point application code uses to answer "may
// this user use this feature" and to record usage. It composes the
// subscription store, the quota resolver and the usage ledger; callers
// never talk to those directly.
type Service interface {
	// CanUse reports whether one more use of the feature would be accepted,
	// without recording anything. Returns nil when allowed, ErrNoAccess or
	// ErrUsageLimitExceeded when not.
	//
	// The answer is advisory: under concurrency only RecordUse decides.
	CanUse(ctx context.Context, userID uuid.UUID, feature quota.Feature) error

	// RecordUse atomically records one use of the feature if the user's
	// quota allows it, returning the resulting usage count. On denial the
	// count reflects current usage and the error is ErrNoAccess or
	// ErrUsageLimitExceeded.
	RecordUse(ctx context.Context, userID uuid.UUID, feature quota.Feature) (int64, error)

	// Usage returns the current period's usage and the resolved limit.
	Usage(ctx context.Context, userID uuid.UUID, feature quota.Feature) (used, limit int64, err error)

	// UsagePercentage returns usage as a percentage (0-100), or -1 for
	// unlimited features. Returns 100 when usage cannot be read, so
	// dashboards degrade toward "exhausted" rather than "plenty left".
	UsagePercentage(ctx context.Context, userID uuid.UUID, feature quota.Feature) int

	// AllUsage returns usage and limits for every metered feature.
	AllUsage(ctx context.Context, userID uuid.UUID) (map[quota.Feature]UsageInfo, error)

	// HasAccess reports whether the user currently has any entitlement
	// source (an access-granting subscription or an active signup trial).
	HasAccess(ctx context.Context, userID uuid.UUID) bool

	// CheckoutLink creates a hosted checkout session for upgrading to a plan.
	CheckoutLink(ctx context.Context, req billing.CheckoutRequest) (*billing.CheckoutLink, error)

	// CustomerPortalLink returns a billing portal link for the user's
	// subscription. Returns billing.ErrSubscriptionNotFound for users who
	// never subscribed.
	CustomerPortalLink(ctx context.Context, userID uuid.UUID) (*billing.PortalLink, error)
}

// UsageInfo pairs current usage with the resolved limit for one feature.
type UsageInfo struct {
	Used  int64
	Limit int64
}

// TrialChecker reports whether the user's signup trial is active. It backs
// entitlements for users who have no subscription yet; account signup time
// lives outside this package.
type TrialChecker func(ctx context.Context, userID uuid.UUID) (bool, error)

type service struct {
	subscriptions billing.Store
	ledger        usage.Ledger
	resolver      *quota.Resolver
	provider      billing.Provider
	trialChecker  TrialChecker
	log           *slog.Logger
	now           func() time.Time
}

// Option configures the Service.
type Option func(*service)

// WithProvider enables the checkout and portal passthrough calls.
func WithProvider(p billing.Provider) Option {
	return func(s *service) {
		s.provider = p
	}
}

// WithTrialChecker sets the signup-trial predicate. Without one, users with
// no subscription have no entitlements.
func WithTrialChecker(check TrialChecker) Option {
	return func(s *service) {
		if check != nil {
			s.trialChecker = check
		}
	}
}

// WithLogger sets the service logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(s *service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides the service clock for tests.
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates the entitlement service. Panics on nil required
// dependencies to fail fast during initialization.
func NewService(subscriptions billing.Store, ledger usage.Ledger, resolver *quota.Resolver, opts ...Option) Service {
	if subscriptions == nil {
		panic("entitlement: subscription store is required")
	}
	if ledger == nil {
		panic("entitlement: usage ledger is required")
	}
	if resolver == nil {
		panic("entitlement: quota resolver is required")
	}
	s := &service{
		subscriptions: subscriptions,
		ledger:        ledger,
		resolver:      resolver,
		trialChecker:  func(context.Context, uuid.UUID) (bool, error) { return false, nil },
		log:           slog.Default(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// resolveLimit determines the per-period limit for the user and feature
// from their subscription state, falling back to the signup trial when no
// subscription exists. Storage failures propagate; entitlements are never
// guessed when state cannot be read.
func (s *service) resolveLimit(ctx context.Context, userID uuid.UUID, feature quota.Feature) (int64, error) {
	sub, err := s.subscriptions.GetByUserID(ctx, userID)
	if err != nil {
		if !errors.Is(err, billing.ErrSubscriptionNotFound) {
			return quota.NoAccess, err
		}
		inTrial, err := s.trialChecker(ctx, userID)
		if err != nil {
			return quota.NoAccess, err
		}
		return s.resolver.Limit(quota.PlanNone, feature, inTrial), nil
	}

	// A subscription that lost access (canceled, unpaid) does not fall back
	// to the signup trial; that would reward cancellation with free quota.
	if !sub.HasAccess() {
		return quota.NoAccess, nil
	}
	return s.resolver.Limit(sub.PlanType, feature, sub.InTrialAt(s.now())), nil
}

func (s *service) CanUse(ctx context.Context, userID uuid.UUID, feature quota.Feature) error {
	limit, err := s.resolveLimit(ctx, userID, feature)
	if err != nil {
		return err
	}
	if limit == quota.NoAccess {
		return ErrNoAccess
	}
	if limit == quota.Unlimited {
		return nil
	}

	used, err := s.ledger.CurrentUsage(ctx, userID, feature)
	if err != nil {
		return err
	}
	if used >= limit {
		return ErrUsageLimitExceeded
	}
	return nil
}

func (s *service) RecordUse(ctx context.Context, userID uuid.UUID, feature quota.Feature) (int64, error) {
	limit, err := s.resolveLimit(ctx, userID, feature)
	if err != nil {
		return 0, err
	}
	if limit == quota.NoAccess {
		return 0, ErrNoAccess
	}

	result, err := s.ledger.TryIncrement(ctx, userID, feature, limit)
	if err != nil {
		return 0, err
	}
	if !result.Accepted {
		s.log.InfoContext(ctx, "usage denied",
			slog.String("user_id", userID.String()),
			slog.String("feature", string(feature)),
			slog.Int64("used", result.Count),
			slog.Int64("limit", limit))
		return result.Count, ErrUsageLimitExceeded
	}
	return result.Count, nil
}

func (s *service) Usage(ctx context.Context, userID uuid.UUID, feature quota.Feature) (used, limit int64, err error) {
	limit, err = s.resolveLimit(ctx, userID, feature)
	if err != nil {
		return 0, 0, err
	}
	used, err = s.ledger.CurrentUsage(ctx, userID, feature)
	if err != nil {
		return 0, 0, err
	}
	return used, limit, nil
}

func (s *service) UsagePercentage(ctx context.Context, userID uuid.UUID, feature quota.Feature) int {
	used, limit, err := s.Usage(ctx, userID, feature)
	if err != nil {
		return 100
	}
	switch {
	case limit == quota.Unlimited:
		return -1
	case limit == quota.NoAccess:
		return 100
	}
	pct := int(used * 100 / limit)
	if pct > 100 {
		pct = 100
	}
	return pct
}

func (s *service) AllUsage(ctx context.Context, userID uuid.UUID) (map[quota.Feature]UsageInfo, error) {
	result := make(map[quota.Feature]UsageInfo, len(quota.Features()))
	for _, feature := range quota.Features() {
		used, limit, err := s.Usage(ctx, userID, feature)
		if err != nil {
			return nil, err
		}
		result[feature] = UsageInfo{Used: used, Limit: limit}
	}
	return result, nil
}

func (s *service) HasAccess(ctx context.Context, userID uuid.UUID) bool {
	sub, err := s.subscriptions.GetByUserID(ctx, userID)
	if err == nil {
		return sub.HasAccess()
	}
	if !errors.Is(err, billing.ErrSubscriptionNotFound) {
		return false
	}
	inTrial, err := s.trialChecker(ctx, userID)
	return err == nil && inTrial
}

func (s *service) CheckoutLink(ctx context.Context, req billing.CheckoutRequest) (*billing.CheckoutLink, error) {
	if s.provider == nil {
		return nil, ErrProviderNotConfigured
	}
	return s.provider.CreateCheckoutLink(ctx, req)
}

func (s *service) CustomerPortalLink(ctx context.Context, userID uuid.UUID) (*billing.PortalLink, error) {
	if s.provider == nil {
		return nil, ErrProviderNotConfigured
	}
	sub, err := s.subscriptions.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.provider.CustomerPortalLink(ctx, sub)
}
