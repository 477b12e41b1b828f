package usage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/entitlement/pkg/quota"
)

// PostgresLedger is a Ledger backed by the usage_records table.
//
// The limit check and increment happen in one conditional upsert, so the
// database serializes concurrent attempts on the same row and the counter
// can never overrun the limit regardless of application-level races.
type PostgresLedger struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// PostgresLedgerOption configures a PostgresLedger.
type PostgresLedgerOption func(*PostgresLedger)

// WithPostgresClock overrides the ledger clock, used in tests to pin the
// billing period.
func WithPostgresClock(now func() time.Time) PostgresLedgerOption {
	return func(l *PostgresLedger) {
		if now != nil {
			l.now = now
		}
	}
}

// NewPostgresLedger creates a ledger on top of an existing connection pool.
func NewPostgresLedger(pool *pgxpool.Pool, opts ...PostgresLedgerOption) *PostgresLedger {
	l := &PostgresLedger{
		pool: pool,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// tryIncrementQuery inserts the period row lazily and increments it only
// while the current count is under the limit. Zero rows returned means the
// limit was reached. The WHERE clause guards the update arm; the insert arm
// is safe because a first use always satisfies limit >= 1 (limit = 0 is
// rejected before reaching the database).
const tryIncrementQuery = `
INSERT INTO usage_records (user_id, feature_type, period_start, period_end, usage_count)
VALUES ($1, $2, $3, $4, 1)
ON CONFLICT (user_id, feature_type, period_start) DO UPDATE
SET usage_count = usage_records.usage_count + 1,
    updated_at  = now()
WHERE $5::bigint = -1 OR usage_records.usage_count < $5::bigint
RETURNING usage_count`

const currentUsageQuery = `
SELECT usage_count FROM usage_records
WHERE user_id = $1 AND feature_type = $2 AND period_start = $3`

func (l *PostgresLedger) TryIncrement(ctx context.Context, userID uuid.UUID, feature quota.Feature, limit int64) (IncrementResult, error) {
	period := PeriodFor(l.now())

	// No-access callers must not leave a zero-count row behind.
	if limit == quota.NoAccess {
		current, err := l.usageAt(ctx, userID, feature, period)
		if err != nil {
			return IncrementResult{}, err
		}
		return IncrementResult{Accepted: false, Count: current}, nil
	}

	var count int64
	err := l.pool.QueryRow(ctx, tryIncrementQuery,
		userID, string(feature), period.Start, period.End, limit,
	).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		current, err := l.usageAt(ctx, userID, feature, period)
		if err != nil {
			return IncrementResult{}, err
		}
		return IncrementResult{Accepted: false, Count: current}, nil
	}
	if err != nil {
		return IncrementResult{}, errors.Join(ErrFailedToRecordUsage, err)
	}

	return IncrementResult{Accepted: true, Count: count}, nil
}

func (l *PostgresLedger) CurrentUsage(ctx context.Context, userID uuid.UUID, feature quota.Feature) (int64, error) {
	return l.usageAt(ctx, userID, feature, PeriodFor(l.now()))
}

func (l *PostgresLedger) usageAt(ctx context.Context, userID uuid.UUID, feature quota.Feature, period Period) (int64, error) {
	var count int64
	err := l.pool.QueryRow(ctx, currentUsageQuery, userID, string(feature), period.Start).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Join(ErrFailedToReadUsage, err)
	}
	return count, nil
}

// RecordFor returns the full usage record for the current period, or nil if
// the user has no recorded usage yet. Intended for admin and reporting
// surfaces, not for entitlement decisions.
func (l *PostgresLedger) RecordFor(ctx context.Context, userID uuid.UUID, feature quota.Feature) (*Record, error) {
	period := PeriodFor(l.now())

	var rec Record
	err := l.pool.QueryRow(ctx, `
SELECT user_id, feature_type, usage_count, period_start, period_end, metadata
FROM usage_records
WHERE user_id = $1 AND feature_type = $2 AND period_start = $3`,
		userID, string(feature), period.Start,
	).Scan(&rec.UserID, &rec.Feature, &rec.Count, &rec.PeriodStart, &rec.PeriodEnd, &rec.Metadata)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Join(ErrFailedToReadUsage, err)
	}
	return &rec, nil
}
