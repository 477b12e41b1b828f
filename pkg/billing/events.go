package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/entitlement/pkg/quota"
)

// EventType names the billing-provider webhook events this core reacts to.
type EventType string

const (
	EventSubscriptionCreated     EventType = "subscription.created"
	EventSubscriptionUpdated     EventType = "subscription.updated"
	EventSubscriptionDeleted     EventType = "subscription.deleted"
	EventInvoicePaymentSucceeded EventType = "invoice.payment_succeeded"
	EventInvoicePaymentFailed    EventType = "invoice.payment_failed"
)

// Event is the tagged union of parsed webhook payloads. Each variant
// carries only the fields its handler actually uses, validated by
// ParseEvent so nothing downstream ever touches raw provider JSON.
type Event interface {
	Type() EventType
}

// SubscriptionCreated carries the full initial state of a new subscription.
type SubscriptionCreated struct {
	ProviderSubscriptionID string
	ProviderCustomerID     string
	UserID                 uuid.UUID
	PlanType               quota.PlanType
	Status                 Status
	CurrentPeriodStart     time.Time
	CurrentPeriodEnd       time.Time
	CancelAtPeriodEnd      bool
	TrialStart             *time.Time
	TrialEnd               *time.Time
	OccurredAt             time.Time
}

func (SubscriptionCreated) Type() EventType { return EventSubscriptionCreated }

// SubscriptionUpdated carries the provider's full current-state snapshot.
// Applying it overwrites the stored row verbatim, which is what makes
// replays idempotent.
type SubscriptionUpdated struct {
	ProviderSubscriptionID string
	PlanType               quota.PlanType
	Status                 Status
	CurrentPeriodStart     time.Time
	CurrentPeriodEnd       time.Time
	CancelAtPeriodEnd      bool
	CanceledAt             *time.Time
	TrialStart             *time.Time
	TrialEnd               *time.Time
	OccurredAt             time.Time
}

func (SubscriptionUpdated) Type() EventType { return EventSubscriptionUpdated }

// SubscriptionDeleted marks the provider-side end of a subscription.
type SubscriptionDeleted struct {
	ProviderSubscriptionID string
	OccurredAt             time.Time
}

func (SubscriptionDeleted) Type() EventType { return EventSubscriptionDeleted }

// InvoicePaymentSucceeded may reference a subscription; an empty reference
// means the invoice was not subscription-related and the event is a no-op.
type InvoicePaymentSucceeded struct {
	ProviderSubscriptionID string
	OccurredAt             time.Time
}

func (InvoicePaymentSucceeded) Type() EventType { return EventInvoicePaymentSucceeded }

// InvoicePaymentFailed may reference a subscription, see
// InvoicePaymentSucceeded.
type InvoicePaymentFailed struct {
	ProviderSubscriptionID string
	OccurredAt             time.Time
}

func (InvoicePaymentFailed) Type() EventType { return EventInvoicePaymentFailed }

// UnknownEvent preserves the provider's event name for logging. The
// reconciler accepts and ignores it, which keeps the pipeline forward
// compatible with the provider's growing event catalog.
type UnknownEvent struct {
	ProviderType string
}

func (UnknownEvent) Type() EventType { return EventType("") }

// envelope is the common outer shape of provider webhook payloads.
type envelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// subscriptionObject is the provider's subscription resource as delivered
// inside subscription.* events. Instants arrive as unix timestamps.
type subscriptionObject struct {
	ID                 string            `json:"id"`
	Customer           string            `json:"customer"`
	Status             string            `json:"status"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	CanceledAt         *int64            `json:"canceled_at"`
	TrialStart         *int64            `json:"trial_start"`
	TrialEnd           *int64            `json:"trial_end"`
	Metadata           map[string]string `json:"metadata"`
}

// invoiceObject is the subset of the provider's invoice resource the
// reconciler cares about.
type invoiceObject struct {
	ID           string `json:"id"`
	Subscription string `json:"subscription"`
}

// ParseEvent validates a raw webhook payload and returns the typed event.
//
// Validation failures return an error joined with ErrEventRejected so the
// delivery pipeline can log and drop the event without retrying. Event
// types outside the known catalog parse successfully into UnknownEvent.
func ParseEvent(payload []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, errors.Join(ErrEventRejected, err)
	}
	if env.Type == "" {
		return nil, errors.Join(ErrEventRejected, errors.New("event type is missing"))
	}

	// A missing occurrence timestamp leaves OccurredAt zero, which disables
	// the reconciler's stale-snapshot guard for that event instead of
	// misreading it as the Unix epoch.
	var occurredAt time.Time
	if env.Created != 0 {
		occurredAt = time.Unix(env.Created, 0).UTC()
	}

	switch EventType(env.Type) {
	case EventSubscriptionCreated:
		obj, err := parseSubscriptionObject(env.Data.Object)
		if err != nil {
			return nil, err
		}
		if err := obj.validate(); err != nil {
			return nil, err
		}
		userID, planType, err := requireMetadata(obj.Metadata)
		if err != nil {
			return nil, err
		}
		status, err := ParseStatus(obj.Status)
		if err != nil {
			return nil, errors.Join(ErrEventRejected, err, fmt.Errorf("status %q", obj.Status))
		}
		return SubscriptionCreated{
			ProviderSubscriptionID: obj.ID,
			ProviderCustomerID:     obj.Customer,
			UserID:                 userID,
			PlanType:               planType,
			Status:                 status,
			CurrentPeriodStart:     time.Unix(obj.CurrentPeriodStart, 0).UTC(),
			CurrentPeriodEnd:       time.Unix(obj.CurrentPeriodEnd, 0).UTC(),
			CancelAtPeriodEnd:      obj.CancelAtPeriodEnd,
			TrialStart:             unixPtr(obj.TrialStart),
			TrialEnd:               unixPtr(obj.TrialEnd),
			OccurredAt:             occurredAt,
		}, nil

	case EventSubscriptionUpdated:
		obj, err := parseSubscriptionObject(env.Data.Object)
		if err != nil {
			return nil, err
		}
		if err := obj.validate(); err != nil {
			return nil, err
		}
		status, err := ParseStatus(obj.Status)
		if err != nil {
			return nil, errors.Join(ErrEventRejected, err, fmt.Errorf("status %q", obj.Status))
		}
		return SubscriptionUpdated{
			ProviderSubscriptionID: obj.ID,
			PlanType:               quota.PlanType(obj.Metadata["plan_type"]),
			Status:                 status,
			CurrentPeriodStart:     time.Unix(obj.CurrentPeriodStart, 0).UTC(),
			CurrentPeriodEnd:       time.Unix(obj.CurrentPeriodEnd, 0).UTC(),
			CancelAtPeriodEnd:      obj.CancelAtPeriodEnd,
			CanceledAt:             unixPtr(obj.CanceledAt),
			TrialStart:             unixPtr(obj.TrialStart),
			TrialEnd:               unixPtr(obj.TrialEnd),
			OccurredAt:             occurredAt,
		}, nil

	case EventSubscriptionDeleted:
		obj, err := parseSubscriptionObject(env.Data.Object)
		if err != nil {
			return nil, err
		}
		return SubscriptionDeleted{
			ProviderSubscriptionID: obj.ID,
			OccurredAt:             occurredAt,
		}, nil

	case EventInvoicePaymentSucceeded, EventInvoicePaymentFailed:
		var obj invoiceObject
		if err := json.Unmarshal(env.Data.Object, &obj); err != nil {
			return nil, errors.Join(ErrEventRejected, err)
		}
		if EventType(env.Type) == EventInvoicePaymentSucceeded {
			return InvoicePaymentSucceeded{ProviderSubscriptionID: obj.Subscription, OccurredAt: occurredAt}, nil
		}
		return InvoicePaymentFailed{ProviderSubscriptionID: obj.Subscription, OccurredAt: occurredAt}, nil

	default:
		return UnknownEvent{ProviderType: env.Type}, nil
	}
}

func parseSubscriptionObject(raw json.RawMessage) (*subscriptionObject, error) {
	if len(raw) == 0 {
		return nil, errors.Join(ErrEventRejected, errors.New("event data object is missing"))
	}
	var obj subscriptionObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, errors.Join(ErrEventRejected, err)
	}
	if obj.ID == "" {
		return nil, errors.Join(ErrEventRejected, errors.New("subscription id is missing"))
	}
	return &obj, nil
}

// validate enforces the stored-model invariants on snapshot payloads before
// anything reaches the store: period bounds present and ordered, trial
// bounds both-or-neither and ordered.
func (obj *subscriptionObject) validate() error {
	if obj.CurrentPeriodStart <= 0 || obj.CurrentPeriodEnd <= 0 {
		return errors.Join(ErrEventRejected, errors.New("subscription period bounds are missing"))
	}
	if obj.CurrentPeriodStart >= obj.CurrentPeriodEnd {
		return errors.Join(ErrEventRejected, errors.New("subscription period start must precede period end"))
	}
	if (obj.TrialStart == nil) != (obj.TrialEnd == nil) {
		return errors.Join(ErrEventRejected, errors.New("trial bounds must be set together"))
	}
	if obj.TrialStart != nil && *obj.TrialStart >= *obj.TrialEnd {
		return errors.Join(ErrEventRejected, errors.New("trial start must precede trial end"))
	}
	return nil
}

// requireMetadata extracts the user and plan references that
// subscription.created must carry. Without them no partial row is created.
func requireMetadata(metadata map[string]string) (uuid.UUID, quota.PlanType, error) {
	raw, ok := metadata["user_id"]
	if !ok || raw == "" {
		return uuid.Nil, "", errors.Join(ErrEventRejected, errors.New("user_id metadata is missing"))
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, "", errors.Join(ErrEventRejected, fmt.Errorf("invalid user_id metadata: %w", err))
	}

	plan, ok := metadata["plan_type"]
	if !ok || plan == "" {
		return uuid.Nil, "", errors.Join(ErrEventRejected, errors.New("plan_type metadata is missing"))
	}

	return userID, quota.PlanType(plan), nil
}

func unixPtr(v *int64) *time.Time {
	if v == nil {
		return nil
	}
	t := time.Unix(*v, 0).UTC()
	return &t
}
