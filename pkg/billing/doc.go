// Package billing maintains a local copy of subscription state driven by
// billing provider webhooks.
//
// The provider owns the truth about subscriptions; this package reconciles
// provider-pushed events into the local store and exposes outbound calls
// for checkout and customer portal links. Application code never mutates
// subscription state directly.
//
// # Core Components
//
//   - Reconciler: applies webhook events to the subscription store
//   - Store: persists subscriptions (Postgres, MongoDB, in-memory)
//   - Provider: outbound billing provider calls (Stripe, Paddle)
//   - WebhookHandler: HTTP transport wiring verification and reconciliation
//
// # Event Handling
//
// Events are parsed into a typed union by ParseEvent. Subscription events
// carry full state snapshots and are applied idempotently; replaying a
// delivery converges to the same state. Invoice events drive the payment
// status transitions: payment_succeeded restores past_due subscriptions to
// active, payment_failed marks any subscription past_due. Unknown event
// types are acknowledged and ignored so the provider's catalog can grow
// without breaking deliveries.
//
// Deliveries are not ordered. Snapshot events older than the last applied
// snapshot are skipped to prevent state regression.
//
// # Quick Start
//
//	store := billing.NewPostgresStore(pool)
//	reconciler := billing.NewReconciler(store, billing.WithLogger(log))
//
//	provider, err := billing.NewStripeProvider(cfg, prices)
//	if err != nil {
//		return err
//	}
//
//	handler := billing.NewWebhookHandler(provider, reconciler)
//	r.Mount("/billing", handler.Handle())
package billing
