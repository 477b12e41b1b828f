package billing_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitlement/pkg/billing"
	"github.com/dmitrymomot/entitlement/pkg/quota"
)

func newReconcilerFixture(t *testing.T) (*billing.Reconciler, *billing.MemoryStore) {
	t.Helper()
	store := billing.NewMemoryStore()
	return billing.NewReconciler(store), store
}

func createdEvent(userID uuid.UUID) billing.SubscriptionCreated {
	return billing.SubscriptionCreated{
		ProviderSubscriptionID: "sub_1",
		ProviderCustomerID:     "cus_1",
		UserID:                 userID,
		PlanType:               quota.PlanBasic,
		Status:                 billing.StatusActive,
		CurrentPeriodStart:     time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		CurrentPeriodEnd:       time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		OccurredAt:             time.Date(2025, 6, 1, 0, 0, 1, 0, time.UTC),
	}
}

func updatedEvent(occurredAt time.Time, status billing.Status) billing.SubscriptionUpdated {
	return billing.SubscriptionUpdated{
		ProviderSubscriptionID: "sub_1",
		PlanType:               quota.PlanPro,
		Status:                 status,
		CurrentPeriodStart:     time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		CurrentPeriodEnd:       time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		OccurredAt:             occurredAt,
	}
}

func TestReconciler_SubscriptionCreated(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("creates subscription", func(t *testing.T) {
		t.Parallel()

		reconciler, store := newReconcilerFixture(t)
		userID := uuid.New()

		require.NoError(t, reconciler.Apply(ctx, createdEvent(userID)))

		sub, err := store.GetByUserID(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, "sub_1", sub.ProviderSubscriptionID)
		assert.Equal(t, quota.PlanBasic, sub.PlanType)
		assert.Equal(t, billing.StatusActive, sub.Status)
		require.NotNil(t, sub.ProviderEventAt)
	})

	t.Run("replay does not duplicate", func(t *testing.T) {
		t.Parallel()

		reconciler, store := newReconcilerFixture(t)
		userID := uuid.New()
		ev := createdEvent(userID)

		require.NoError(t, reconciler.Apply(ctx, ev))
		first, err := store.GetByUserID(ctx, userID)
		require.NoError(t, err)

		require.NoError(t, reconciler.Apply(ctx, ev))
		second, err := store.GetByUserID(ctx, userID)
		require.NoError(t, err)

		assert.Equal(t, 1, store.Len())
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, first.Status, second.Status)
	})

	t.Run("second subscription for same user is rejected", func(t *testing.T) {
		t.Parallel()

		reconciler, store := newReconcilerFixture(t)
		userID := uuid.New()

		require.NoError(t, reconciler.Apply(ctx, createdEvent(userID)))

		dup := createdEvent(userID)
		dup.ProviderSubscriptionID = "sub_2"
		err := reconciler.Apply(ctx, dup)
		require.ErrorIs(t, err, billing.ErrEventRejected)
		require.ErrorIs(t, err, billing.ErrSubscriptionAlreadyExists)

		assert.Equal(t, 1, store.Len())
	})
}

func TestReconciler_SubscriptionUpdated(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("applies snapshot", func(t *testing.T) {
		t.Parallel()

		reconciler, store := newReconcilerFixture(t)
		userID := uuid.New()
		require.NoError(t, reconciler.Apply(ctx, createdEvent(userID)))

		occurredAt := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
		require.NoError(t, reconciler.Apply(ctx, updatedEvent(occurredAt, billing.StatusPastDue)))

		sub, err := store.GetByUserID(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, billing.StatusPastDue, sub.Status)
		assert.Equal(t, quota.PlanPro, sub.PlanType)
		require.NotNil(t, sub.ProviderEventAt)
		assert.Equal(t, occurredAt, *sub.ProviderEventAt)
	})

	t.Run("replay converges to same state", func(t *testing.T) {
		t.Parallel()

		reconciler, store := newReconcilerFixture(t)
		userID := uuid.New()
		require.NoError(t, reconciler.Apply(ctx, createdEvent(userID)))

		ev := updatedEvent(time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), billing.StatusActive)
		require.NoError(t, reconciler.Apply(ctx, ev))
		first, err := store.GetByUserID(ctx, userID)
		require.NoError(t, err)

		require.NoError(t, reconciler.Apply(ctx, ev))
		second, err := store.GetByUserID(ctx, userID)
		require.NoError(t, err)

		assert.Equal(t, first.Status, second.Status)
		assert.Equal(t, first.PlanType, second.PlanType)
		assert.Equal(t, first.CurrentPeriodEnd, second.CurrentPeriodEnd)
	})

	t.Run("stale snapshot is skipped", func(t *testing.T) {
		t.Parallel()

		reconciler, store := newReconcilerFixture(t)
		userID := uuid.New()
		require.NoError(t, reconciler.Apply(ctx, createdEvent(userID)))

		newer := updatedEvent(time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC), billing.StatusCanceled)
		newer.CanceledAt = &newer.OccurredAt
		require.NoError(t, reconciler.Apply(ctx, newer))

		// A delayed delivery of an older snapshot must not resurrect the
		// subscription.
		stale := updatedEvent(time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), billing.StatusActive)
		require.NoError(t, reconciler.Apply(ctx, stale))

		sub, err := store.GetByUserID(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, billing.StatusCanceled, sub.Status)
	})

	t.Run("unknown subscription is a no-op", func(t *testing.T) {
		t.Parallel()

		reconciler, store := newReconcilerFixture(t)
		ev := updatedEvent(time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), billing.StatusActive)

		require.NoError(t, reconciler.Apply(ctx, ev))
		assert.Equal(t, 0, store.Len())
	})

	t.Run("snapshot without occurrence timestamp still applies", func(t *testing.T) {
		t.Parallel()

		reconciler, store := newReconcilerFixture(t)
		userID := uuid.New()
		created := createdEvent(userID)
		require.NoError(t, reconciler.Apply(ctx, created))

		// An unordered snapshot must not be mistaken for a stale one, and
		// it must not erase the ordering marker left by earlier events.
		ev := updatedEvent(time.Time{}, billing.StatusPastDue)
		require.NoError(t, reconciler.Apply(ctx, ev))

		sub, err := store.GetByUserID(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, billing.StatusPastDue, sub.Status)
		require.NotNil(t, sub.ProviderEventAt)
		assert.Equal(t, created.OccurredAt, *sub.ProviderEventAt)
	})

	t.Run("canceled status without instant gets one", func(t *testing.T) {
		t.Parallel()

		reconciler, store := newReconcilerFixture(t)
		userID := uuid.New()
		require.NoError(t, reconciler.Apply(ctx, createdEvent(userID)))

		ev := updatedEvent(time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), billing.StatusCanceled)
		require.NoError(t, reconciler.Apply(ctx, ev))

		sub, err := store.GetByUserID(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, billing.StatusCanceled, sub.Status)
		assert.NotNil(t, sub.CanceledAt)
	})

	t.Run("reactivation after cancellation", func(t *testing.T) {
		t.Parallel()

		reconciler, store := newReconcilerFixture(t)
		userID := uuid.New()
		require.NoError(t, reconciler.Apply(ctx, createdEvent(userID)))

		canceled := updatedEvent(time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), billing.StatusCanceled)
		require.NoError(t, reconciler.Apply(ctx, canceled))

		reactivated := updatedEvent(time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC), billing.StatusActive)
		require.NoError(t, reconciler.Apply(ctx, reactivated))

		sub, err := store.GetByUserID(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, billing.StatusActive, sub.Status)
		assert.Nil(t, sub.CanceledAt)
		assert.True(t, sub.HasAccess())
	})
}

func TestReconciler_SubscriptionDeleted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("cancels subscription", func(t *testing.T) {
		t.Parallel()

		reconciler, store := newReconcilerFixture(t)
		userID := uuid.New()
		require.NoError(t, reconciler.Apply(ctx, createdEvent(userID)))

		require.NoError(t, reconciler.Apply(ctx, billing.SubscriptionDeleted{
			ProviderSubscriptionID: "sub_1",
			OccurredAt:             time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC),
		}))

		sub, err := store.GetByUserID(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, billing.StatusCanceled, sub.Status)
		assert.NotNil(t, sub.CanceledAt)
		assert.False(t, sub.HasAccess())
	})

	t.Run("unknown subscription is a no-op", func(t *testing.T) {
		t.Parallel()

		reconciler, _ := newReconcilerFixture(t)
		require.NoError(t, reconciler.Apply(ctx, billing.SubscriptionDeleted{
			ProviderSubscriptionID: "sub_missing",
			OccurredAt:             time.Now(),
		}))
	})
}

func TestReconciler_InvoiceEvents(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	seed := func(t *testing.T, status billing.Status) (*billing.Reconciler, *billing.MemoryStore, uuid.UUID) {
		t.Helper()
		reconciler, store := newReconcilerFixture(t)
		userID := uuid.New()
		require.NoError(t, reconciler.Apply(ctx, createdEvent(userID)))
		if status != billing.StatusActive {
			require.NoError(t, reconciler.Apply(ctx, updatedEvent(
				time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), status)))
		}
		return reconciler, store, userID
	}

	t.Run("payment succeeded restores past_due to active", func(t *testing.T) {
		t.Parallel()

		reconciler, store, userID := seed(t, billing.StatusPastDue)
		require.NoError(t, reconciler.Apply(ctx, billing.InvoicePaymentSucceeded{
			ProviderSubscriptionID: "sub_1",
		}))

		sub, err := store.GetByUserID(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, billing.StatusActive, sub.Status)
	})

	t.Run("payment succeeded leaves other statuses alone", func(t *testing.T) {
		t.Parallel()

		for _, status := range []billing.Status{
			billing.StatusActive, billing.StatusTrialing, billing.StatusCanceled, billing.StatusUnpaid,
		} {
			reconciler, store, userID := seed(t, status)
			require.NoError(t, reconciler.Apply(ctx, billing.InvoicePaymentSucceeded{
				ProviderSubscriptionID: "sub_1",
			}))

			sub, err := store.GetByUserID(ctx, userID)
			require.NoError(t, err)
			assert.Equal(t, status, sub.Status, "status %s must not change", status)
		}
	})

	t.Run("payment failed marks past_due", func(t *testing.T) {
		t.Parallel()

		reconciler, store, userID := seed(t, billing.StatusActive)
		require.NoError(t, reconciler.Apply(ctx, billing.InvoicePaymentFailed{
			ProviderSubscriptionID: "sub_1",
		}))

		sub, err := store.GetByUserID(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, billing.StatusPastDue, sub.Status)
		assert.True(t, sub.HasAccess(), "past_due keeps access during dunning")
	})

	t.Run("replay of payment events is idempotent", func(t *testing.T) {
		t.Parallel()

		reconciler, store, userID := seed(t, billing.StatusPastDue)
		ev := billing.InvoicePaymentSucceeded{ProviderSubscriptionID: "sub_1"}

		require.NoError(t, reconciler.Apply(ctx, ev))
		require.NoError(t, reconciler.Apply(ctx, ev))

		sub, err := store.GetByUserID(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, billing.StatusActive, sub.Status)
	})

	t.Run("invoice without subscription reference is a no-op", func(t *testing.T) {
		t.Parallel()

		reconciler, store := newReconcilerFixture(t)
		require.NoError(t, reconciler.Apply(ctx, billing.InvoicePaymentFailed{}))
		assert.Equal(t, 0, store.Len())
	})

	t.Run("invoice for unknown subscription is a no-op", func(t *testing.T) {
		t.Parallel()

		reconciler, _ := newReconcilerFixture(t)
		require.NoError(t, reconciler.Apply(ctx, billing.InvoicePaymentFailed{
			ProviderSubscriptionID: "sub_missing",
		}))
	})
}

func TestReconciler_ApplyPayload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("applies valid payload", func(t *testing.T) {
		t.Parallel()

		reconciler, store := newReconcilerFixture(t)
		userID := uuid.New()

		require.NoError(t, reconciler.ApplyPayload(ctx, subscriptionCreatedPayload(userID, "pro", "active")))

		sub, err := store.GetByUserID(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, billing.StatusActive, sub.Status)
	})

	t.Run("rejects snapshot without period bounds before storage", func(t *testing.T) {
		t.Parallel()

		reconciler, store := newReconcilerFixture(t)
		payload := fmt.Appendf(nil, `{
			"id": "evt_1", "type": "subscription.created", "created": 1700000000,
			"data": {"object": {"id": "sub_1", "status": "active",
				"metadata": {"user_id": %q, "plan_type": "pro"}}}
		}`, uuid.New().String())

		err := reconciler.ApplyPayload(ctx, payload)
		require.ErrorIs(t, err, billing.ErrEventRejected)

		// Nothing partial may be stored; a row with zeroed period bounds
		// would poison every later access check.
		assert.Equal(t, 0, store.Len())
	})
}

func TestReconciler_UnknownEventIsIgnored(t *testing.T) {
	t.Parallel()

	reconciler, store := newReconcilerFixture(t)
	require.NoError(t, reconciler.Apply(context.Background(), billing.UnknownEvent{
		ProviderType: "customer.updated",
	}))
	assert.Equal(t, 0, store.Len())
}
