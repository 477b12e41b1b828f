package billing_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitlement/pkg/billing"
	"github.com/dmitrymomot/entitlement/pkg/quota"
)

func subscriptionCreatedPayload(userID uuid.UUID, plan, status string) []byte {
	return fmt.Appendf(nil, `{
		"id": "evt_1",
		"type": "subscription.created",
		"created": 1700000000,
		"data": {"object": {
			"id": "sub_1",
			"customer": "cus_1",
			"status": %q,
			"current_period_start": 1700000000,
			"current_period_end": 1702592000,
			"cancel_at_period_end": false,
			"metadata": {"user_id": %q, "plan_type": %q}
		}}
	}`, status, userID.String(), plan)
}

func TestParseEvent_SubscriptionCreated(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	event, err := billing.ParseEvent(subscriptionCreatedPayload(userID, "pro", "trialing"))
	require.NoError(t, err)

	created, ok := event.(billing.SubscriptionCreated)
	require.True(t, ok, "expected SubscriptionCreated, got %T", event)

	assert.Equal(t, "sub_1", created.ProviderSubscriptionID)
	assert.Equal(t, "cus_1", created.ProviderCustomerID)
	assert.Equal(t, userID, created.UserID)
	assert.Equal(t, quota.PlanPro, created.PlanType)
	assert.Equal(t, billing.StatusTrialing, created.Status)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), created.CurrentPeriodStart)
	assert.Equal(t, time.Unix(1702592000, 0).UTC(), created.CurrentPeriodEnd)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), created.OccurredAt)
	assert.Nil(t, created.TrialStart)
	assert.Nil(t, created.TrialEnd)
}

func TestParseEvent_SubscriptionUpdated(t *testing.T) {
	t.Parallel()

	payload := []byte(`{
		"id": "evt_2",
		"type": "subscription.updated",
		"created": 1700100000,
		"data": {"object": {
			"id": "sub_1",
			"customer": "cus_1",
			"status": "canceled",
			"current_period_start": 1700000000,
			"current_period_end": 1702592000,
			"cancel_at_period_end": true,
			"canceled_at": 1700100000,
			"metadata": {"plan_type": "basic"}
		}}
	}`)

	event, err := billing.ParseEvent(payload)
	require.NoError(t, err)

	updated, ok := event.(billing.SubscriptionUpdated)
	require.True(t, ok, "expected SubscriptionUpdated, got %T", event)

	assert.Equal(t, "sub_1", updated.ProviderSubscriptionID)
	assert.Equal(t, quota.PlanBasic, updated.PlanType)
	assert.Equal(t, billing.StatusCanceled, updated.Status)
	assert.True(t, updated.CancelAtPeriodEnd)
	require.NotNil(t, updated.CanceledAt)
	assert.Equal(t, time.Unix(1700100000, 0).UTC(), *updated.CanceledAt)
}

func TestParseEvent_InvoiceEvents(t *testing.T) {
	t.Parallel()

	t.Run("payment succeeded", func(t *testing.T) {
		t.Parallel()

		payload := []byte(`{
			"id": "evt_3",
			"type": "invoice.payment_succeeded",
			"created": 1700200000,
			"data": {"object": {"id": "in_1", "subscription": "sub_1"}}
		}`)

		event, err := billing.ParseEvent(payload)
		require.NoError(t, err)

		succeeded, ok := event.(billing.InvoicePaymentSucceeded)
		require.True(t, ok, "expected InvoicePaymentSucceeded, got %T", event)
		assert.Equal(t, "sub_1", succeeded.ProviderSubscriptionID)
	})

	t.Run("payment failed without subscription reference", func(t *testing.T) {
		t.Parallel()

		payload := []byte(`{
			"id": "evt_4",
			"type": "invoice.payment_failed",
			"created": 1700200000,
			"data": {"object": {"id": "in_2"}}
		}`)

		event, err := billing.ParseEvent(payload)
		require.NoError(t, err)

		failed, ok := event.(billing.InvoicePaymentFailed)
		require.True(t, ok, "expected InvoicePaymentFailed, got %T", event)
		assert.Empty(t, failed.ProviderSubscriptionID)
	})
}

func TestParseEvent_MissingOccurrenceTimestamp(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	payload := fmt.Appendf(nil, `{
		"id": "evt_nt",
		"type": "subscription.created",
		"data": {"object": {
			"id": "sub_1",
			"customer": "cus_1",
			"status": "active",
			"current_period_start": 1700000000,
			"current_period_end": 1702592000,
			"metadata": {"user_id": %q, "plan_type": "pro"}
		}}
	}`, userID.String())

	event, err := billing.ParseEvent(payload)
	require.NoError(t, err)

	created, ok := event.(billing.SubscriptionCreated)
	require.True(t, ok, "expected SubscriptionCreated, got %T", event)

	// No created field means no ordering information. OccurredAt must stay
	// zero rather than collapse to the Unix epoch, which would make every
	// later snapshot look stale.
	assert.True(t, created.OccurredAt.IsZero())
}

func TestParseEvent_UnknownType(t *testing.T) {
	t.Parallel()

	payload := []byte(`{
		"id": "evt_5",
		"type": "customer.updated",
		"created": 1700300000,
		"data": {"object": {"id": "cus_1"}}
	}`)

	event, err := billing.ParseEvent(payload)
	require.NoError(t, err)

	unknown, ok := event.(billing.UnknownEvent)
	require.True(t, ok, "expected UnknownEvent, got %T", event)
	assert.Equal(t, "customer.updated", unknown.ProviderType)
}

func TestParseEvent_Rejections(t *testing.T) {
	t.Parallel()

	userID := uuid.New()

	tests := []struct {
		name    string
		payload []byte
	}{
		{name: "malformed json", payload: []byte(`{not json`)},
		{name: "missing event type", payload: []byte(`{"id": "evt_6", "created": 1}`)},
		{
			name: "created without user_id metadata",
			payload: []byte(`{
				"id": "evt_7", "type": "subscription.created", "created": 1,
				"data": {"object": {"id": "sub_1", "status": "active", "metadata": {"plan_type": "pro"}}}
			}`),
		},
		{
			name: "created without plan_type metadata",
			payload: fmt.Appendf(nil, `{
				"id": "evt_8", "type": "subscription.created", "created": 1,
				"data": {"object": {"id": "sub_1", "status": "active", "metadata": {"user_id": %q}}}
			}`, userID.String()),
		},
		{
			name: "created with invalid user_id",
			payload: []byte(`{
				"id": "evt_9", "type": "subscription.created", "created": 1,
				"data": {"object": {"id": "sub_1", "status": "active", "metadata": {"user_id": "not-a-uuid", "plan_type": "pro"}}}
			}`),
		},
		{
			name:    "created with unknown status",
			payload: subscriptionCreatedPayload(userID, "pro", "paused"),
		},
		{
			name: "updated without subscription id",
			payload: []byte(`{
				"id": "evt_10", "type": "subscription.updated", "created": 1,
				"data": {"object": {"status": "active"}}
			}`),
		},
		{
			name:    "deleted without data object",
			payload: []byte(`{"id": "evt_11", "type": "subscription.deleted", "created": 1, "data": {}}`),
		},
		{
			name: "created without period bounds",
			payload: fmt.Appendf(nil, `{
				"id": "evt_12", "type": "subscription.created", "created": 1,
				"data": {"object": {"id": "sub_1", "status": "active", "metadata": {"user_id": %q, "plan_type": "pro"}}}
			}`, userID.String()),
		},
		{
			name: "created with inverted period bounds",
			payload: fmt.Appendf(nil, `{
				"id": "evt_13", "type": "subscription.created", "created": 1,
				"data": {"object": {"id": "sub_1", "status": "active",
					"current_period_start": 1702592000, "current_period_end": 1700000000,
					"metadata": {"user_id": %q, "plan_type": "pro"}}}
			}`, userID.String()),
		},
		{
			name: "updated with trial start but no trial end",
			payload: []byte(`{
				"id": "evt_14", "type": "subscription.updated", "created": 1,
				"data": {"object": {"id": "sub_1", "status": "trialing",
					"current_period_start": 1700000000, "current_period_end": 1702592000,
					"trial_start": 1700000000,
					"metadata": {"plan_type": "pro"}}}
			}`),
		},
		{
			name: "updated with inverted trial bounds",
			payload: []byte(`{
				"id": "evt_15", "type": "subscription.updated", "created": 1,
				"data": {"object": {"id": "sub_1", "status": "trialing",
					"current_period_start": 1700000000, "current_period_end": 1702592000,
					"trial_start": 1700600000, "trial_end": 1700000000,
					"metadata": {"plan_type": "pro"}}}
			}`),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			event, err := billing.ParseEvent(tt.payload)
			require.ErrorIs(t, err, billing.ErrEventRejected)
			assert.Nil(t, event)
		})
	}
}

func TestParseStatus(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"trialing", "active", "past_due", "unpaid", "canceled"} {
		status, err := billing.ParseStatus(s)
		require.NoError(t, err)
		assert.Equal(t, billing.Status(s), status)
	}

	_, err := billing.ParseStatus("paused")
	require.ErrorIs(t, err, billing.ErrUnknownStatus)
}

func TestStatus_GrantsAccess(t *testing.T) {
	t.Parallel()

	assert.True(t, billing.StatusTrialing.GrantsAccess())
	assert.True(t, billing.StatusActive.GrantsAccess())
	assert.True(t, billing.StatusPastDue.GrantsAccess())
	assert.False(t, billing.StatusUnpaid.GrantsAccess())
	assert.False(t, billing.StatusCanceled.GrantsAccess())
}
