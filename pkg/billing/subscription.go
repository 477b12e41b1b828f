package billing

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/entitlement/pkg/quota"
)

// Subscription is the local copy of a billing-provider subscription.
// Each user has exactly one; the provider remains the source of truth and
// this record only ever changes through the Reconciler. Rows are never
// hard-deleted so canceled subscriptions stay available for audit.
type Subscription struct {
	ID                     uuid.UUID
	UserID                 uuid.UUID
	ProviderSubscriptionID string
	ProviderCustomerID     string
	PlanType               quota.PlanType
	Status                 Status
	CurrentPeriodStart     time.Time
	CurrentPeriodEnd       time.Time
	CancelAtPeriodEnd      bool
	CanceledAt             *time.Time // set iff status is canceled
	TrialStart             *time.Time // both-or-neither with TrialEnd
	TrialEnd               *time.Time
	ProviderEventAt        *time.Time // occurrence time of the last applied provider event
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

func (s *Subscription) IsTrialing() bool {
	return s.Status == StatusTrialing
}

func (s *Subscription) IsActive() bool {
	return s.Status == StatusActive
}

func (s *Subscription) IsCanceled() bool {
	return s.Status == StatusCanceled
}

// HasAccess reports whether the subscription currently entitles the user to
// metered features. Past-due subscriptions keep access during dunning;
// unpaid and canceled ones do not.
func (s *Subscription) HasAccess() bool {
	return s.Status.GrantsAccess()
}

// InTrialAt reports whether the instant falls inside the trial window.
func (s *Subscription) InTrialAt(now time.Time) bool {
	if s.TrialStart == nil || s.TrialEnd == nil {
		return false
	}
	now = now.UTC()
	return !now.Before(*s.TrialStart) && now.Before(*s.TrialEnd)
}

// clone returns a deep copy so store implementations never hand out aliased
// pointers to their internal state.
func (s *Subscription) clone() *Subscription {
	cp := *s
	cp.CanceledAt = cloneTime(s.CanceledAt)
	cp.TrialStart = cloneTime(s.TrialStart)
	cp.TrialEnd = cloneTime(s.TrialEnd)
	cp.ProviderEventAt = cloneTime(s.ProviderEventAt)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
