package billing

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Reconciler applies provider-pushed billing events to the local
// subscription copy. It is the only writer of subscription state.
//
// Every handler is idempotent: subscription events carry full state
// snapshots, and the invoice transitions guard on the prior status. The
// provider does not guarantee delivery order, so snapshot events carry the
// provider's occurrence timestamp and the reconciler skips any snapshot
// older than the last one applied.
type Reconciler struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithLogger sets the reconciler's logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		if log != nil {
			r.log = log
		}
	}
}

// WithClock overrides the reconciler clock for tests.
func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// NewReconciler creates a Reconciler writing through the given store.
// Panics on a nil store to fail fast during initialization.
func NewReconciler(store Store, opts ...ReconcilerOption) *Reconciler {
	if store == nil {
		panic("billing: store is required")
	}
	r := &Reconciler{
		store: store,
		log:   slog.Default(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ApplyPayload parses a raw webhook payload and applies the event.
// Signature verification is the transport's responsibility and must happen
// before this call.
func (r *Reconciler) ApplyPayload(ctx context.Context, payload []byte) error {
	event, err := ParseEvent(payload)
	if err != nil {
		return err
	}
	return r.Apply(ctx, event)
}

// Apply routes a typed event to its handler.
//
// Returns nil for applied events and for deliberate no-ops (unknown event
// types, lookup misses, stale or guarded events). Returns an error joined
// with ErrEventRejected for invalid input, and passes storage failures
// through unchanged so the delivery pipeline can retry them. One bad event
// never affects the processing of others.
func (r *Reconciler) Apply(ctx context.Context, event Event) error {
	switch ev := event.(type) {
	case SubscriptionCreated:
		return r.applyCreated(ctx, ev)
	case SubscriptionUpdated:
		return r.applyUpdated(ctx, ev)
	case SubscriptionDeleted:
		return r.applyDeleted(ctx, ev)
	case InvoicePaymentSucceeded:
		return r.applyPayment(ctx, EventInvoicePaymentSucceeded, ev.ProviderSubscriptionID)
	case InvoicePaymentFailed:
		return r.applyPayment(ctx, EventInvoicePaymentFailed, ev.ProviderSubscriptionID)
	case UnknownEvent:
		r.log.DebugContext(ctx, "ignoring unrecognized billing event",
			slog.String("event_type", ev.ProviderType))
		return nil
	default:
		return errors.Join(ErrEventRejected, errors.New("unsupported event"))
	}
}

func (r *Reconciler) applyCreated(ctx context.Context, ev SubscriptionCreated) error {
	existing, err := r.store.GetByProviderID(ctx, ev.ProviderSubscriptionID)
	if err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
		return err
	}
	if existing != nil && r.isStale(existing, ev.OccurredAt) {
		r.logStale(ctx, EventSubscriptionCreated, ev.ProviderSubscriptionID, ev.OccurredAt, existing)
		return nil
	}

	sub := &Subscription{
		UserID:                 ev.UserID,
		ProviderSubscriptionID: ev.ProviderSubscriptionID,
		ProviderCustomerID:     ev.ProviderCustomerID,
		PlanType:               ev.PlanType,
		Status:                 ev.Status,
		CurrentPeriodStart:     ev.CurrentPeriodStart,
		CurrentPeriodEnd:       ev.CurrentPeriodEnd,
		CancelAtPeriodEnd:      ev.CancelAtPeriodEnd,
		TrialStart:             ev.TrialStart,
		TrialEnd:               ev.TrialEnd,
		ProviderEventAt:        markerFor(nil, ev.OccurredAt),
	}

	if _, err := r.store.UpsertByProviderID(ctx, sub); err != nil {
		if errors.Is(err, ErrSubscriptionAlreadyExists) {
			// The user already has a subscription under another provider
			// id. Retrying cannot resolve the conflict, so drop the event.
			r.log.WarnContext(ctx, "rejecting subscription.created for already-subscribed user",
				slog.String("provider_subscription_id", ev.ProviderSubscriptionID),
				slog.String("user_id", ev.UserID.String()))
			return errors.Join(ErrEventRejected, err)
		}
		return err
	}

	r.log.InfoContext(ctx, "subscription created",
		slog.String("provider_subscription_id", ev.ProviderSubscriptionID),
		slog.String("user_id", ev.UserID.String()),
		slog.String("status", string(ev.Status)))
	return nil
}

func (r *Reconciler) applyUpdated(ctx context.Context, ev SubscriptionUpdated) error {
	sub, err := r.store.GetByProviderID(ctx, ev.ProviderSubscriptionID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			// Updates never create: this is either an ordering race with
			// the created event or a subscription we do not own.
			r.log.WarnContext(ctx, "subscription.updated for unknown subscription",
				slog.String("provider_subscription_id", ev.ProviderSubscriptionID))
			return nil
		}
		return err
	}
	if r.isStale(sub, ev.OccurredAt) {
		r.logStale(ctx, EventSubscriptionUpdated, ev.ProviderSubscriptionID, ev.OccurredAt, sub)
		return nil
	}

	// The payload is a full snapshot: overwrite everything it carries.
	sub.Status = ev.Status
	sub.CurrentPeriodStart = ev.CurrentPeriodStart
	sub.CurrentPeriodEnd = ev.CurrentPeriodEnd
	sub.CancelAtPeriodEnd = ev.CancelAtPeriodEnd
	sub.CanceledAt = ev.CanceledAt
	sub.TrialStart = ev.TrialStart
	sub.TrialEnd = ev.TrialEnd
	if ev.PlanType != "" {
		sub.PlanType = ev.PlanType
	}
	sub.ProviderEventAt = markerFor(sub.ProviderEventAt, ev.OccurredAt)

	// A canceled status must always carry its cancellation instant.
	if sub.Status == StatusCanceled && sub.CanceledAt == nil {
		now := r.now().UTC()
		sub.CanceledAt = &now
	}

	if _, err := r.store.UpsertByProviderID(ctx, sub); err != nil {
		return err
	}

	r.log.InfoContext(ctx, "subscription updated",
		slog.String("provider_subscription_id", ev.ProviderSubscriptionID),
		slog.String("status", string(ev.Status)))
	return nil
}

func (r *Reconciler) applyDeleted(ctx context.Context, ev SubscriptionDeleted) error {
	sub, err := r.store.GetByProviderID(ctx, ev.ProviderSubscriptionID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			r.log.WarnContext(ctx, "subscription.deleted for unknown subscription",
				slog.String("provider_subscription_id", ev.ProviderSubscriptionID))
			return nil
		}
		return err
	}
	if r.isStale(sub, ev.OccurredAt) {
		r.logStale(ctx, EventSubscriptionDeleted, ev.ProviderSubscriptionID, ev.OccurredAt, sub)
		return nil
	}

	sub.Status = StatusCanceled
	if sub.CanceledAt == nil {
		now := r.now().UTC()
		sub.CanceledAt = &now
	}
	sub.ProviderEventAt = markerFor(sub.ProviderEventAt, ev.OccurredAt)

	if _, err := r.store.UpsertByProviderID(ctx, sub); err != nil {
		return err
	}

	r.log.InfoContext(ctx, "subscription canceled",
		slog.String("provider_subscription_id", ev.ProviderSubscriptionID))
	return nil
}

func (r *Reconciler) applyPayment(ctx context.Context, event EventType, providerSubscriptionID string) error {
	// Invoices without a subscription reference (one-off charges) are not
	// our concern.
	if providerSubscriptionID == "" {
		return nil
	}

	sub, err := r.store.GetByProviderID(ctx, providerSubscriptionID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			r.log.WarnContext(ctx, "invoice event for unknown subscription",
				slog.String("event_type", string(event)),
				slog.String("provider_subscription_id", providerSubscriptionID))
			return nil
		}
		return err
	}

	to, ok := paymentTransition(event, sub.Status)
	if !ok {
		return nil
	}

	from := sub.Status
	sub.Status = to
	if _, err := r.store.UpsertByProviderID(ctx, sub); err != nil {
		return err
	}

	r.log.InfoContext(ctx, "subscription status transitioned",
		slog.String("provider_subscription_id", providerSubscriptionID),
		slog.String("event_type", string(event)),
		slog.String("from", string(from)),
		slog.String("to", string(to)))
	return nil
}

// isStale reports whether a snapshot event is older than the last snapshot
// applied to the subscription. The provider does not order deliveries;
// applying an old snapshot over a newer one would regress state. An event
// without an occurrence timestamp cannot be ordered, so the guard stands
// aside and the snapshot applies as a plain overwrite.
func (r *Reconciler) isStale(sub *Subscription, occurredAt time.Time) bool {
	if occurredAt.IsZero() {
		return false
	}
	return sub.ProviderEventAt != nil && occurredAt.Before(*sub.ProviderEventAt)
}

// markerFor returns the ProviderEventAt value after applying an event,
// keeping the previous marker when the event carried no timestamp.
func markerFor(prev *time.Time, occurredAt time.Time) *time.Time {
	if occurredAt.IsZero() {
		return prev
	}
	t := occurredAt
	return &t
}

func (r *Reconciler) logStale(ctx context.Context, event EventType, providerSubscriptionID string, occurredAt time.Time, sub *Subscription) {
	r.log.WarnContext(ctx, "skipping stale billing event",
		slog.String("event_type", string(event)),
		slog.String("provider_subscription_id", providerSubscriptionID),
		slog.Time("event_occurred_at", occurredAt),
		slog.Time("last_applied_at", *sub.ProviderEventAt))
}
