package billing

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/entitlement/pkg/pg"
	"github.com/dmitrymomot/entitlement/pkg/quota"
)

// PostgresStore is a Store backed by the subscriptions table. Uniqueness of
// user_id and provider_subscription_id is enforced by database constraints,
// so duplicate inserts collapse or fail instead of silently multiplying rows.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store on top of an existing connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const upsertSubscriptionQuery = `
INSERT INTO subscriptions (
	id, user_id, provider_subscription_id, provider_customer_id, plan_type,
	status, current_period_start, current_period_end, cancel_at_period_end,
	canceled_at, trial_start, trial_end, provider_event_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (provider_subscription_id) DO UPDATE SET
	provider_customer_id = EXCLUDED.provider_customer_id,
	plan_type            = EXCLUDED.plan_type,
	status               = EXCLUDED.status,
	current_period_start = EXCLUDED.current_period_start,
	current_period_end   = EXCLUDED.current_period_end,
	cancel_at_period_end = EXCLUDED.cancel_at_period_end,
	canceled_at          = EXCLUDED.canceled_at,
	trial_start          = EXCLUDED.trial_start,
	trial_end            = EXCLUDED.trial_end,
	provider_event_at    = EXCLUDED.provider_event_at,
	updated_at           = now()
RETURNING ` + subscriptionColumns

const subscriptionColumns = `
	id, user_id, provider_subscription_id, provider_customer_id, plan_type,
	status, current_period_start, current_period_end, cancel_at_period_end,
	canceled_at, trial_start, trial_end, provider_event_at, created_at, updated_at`

func (s *PostgresStore) UpsertByProviderID(ctx context.Context, sub *Subscription) (*Subscription, error) {
	id := sub.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := s.pool.QueryRow(ctx, upsertSubscriptionQuery,
		id, sub.UserID, sub.ProviderSubscriptionID, sub.ProviderCustomerID,
		string(sub.PlanType), string(sub.Status),
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd,
		sub.CanceledAt, sub.TrialStart, sub.TrialEnd, sub.ProviderEventAt,
	)

	stored, err := scanSubscription(row)
	if err != nil {
		// The user_id unique index rejects a second subscription for the
		// same user arriving under a new provider id.
		if pg.IsDuplicateKeyError(err) {
			return nil, ErrSubscriptionAlreadyExists
		}
		return nil, errors.Join(ErrFailedToSaveSubscription, err)
	}
	return stored, nil
}

func (s *PostgresStore) GetByUserID(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1`, userID)

	sub, err := scanSubscription(row)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, errors.Join(ErrFailedToLoadSubscription, err)
	}
	return sub, nil
}

func (s *PostgresStore) GetByProviderID(ctx context.Context, providerSubscriptionID string) (*Subscription, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE provider_subscription_id = $1`,
		providerSubscriptionID)

	sub, err := scanSubscription(row)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, errors.Join(ErrFailedToLoadSubscription, err)
	}
	return sub, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*Subscription, error) {
	var (
		sub      Subscription
		planType string
		status   string
	)
	err := row.Scan(
		&sub.ID, &sub.UserID, &sub.ProviderSubscriptionID, &sub.ProviderCustomerID,
		&planType, &status,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.CancelAtPeriodEnd,
		&sub.CanceledAt, &sub.TrialStart, &sub.TrialEnd, &sub.ProviderEventAt,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.PlanType = quota.PlanType(planType)
	sub.Status = Status(status)
	return &sub, nil
}
