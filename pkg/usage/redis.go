package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/entitlement/pkg/quota"
)

// RedisLedger is a Ledger backed by Redis counters.
//
// The limit check and increment run inside a Lua script, which Redis
// executes atomically, giving the same no-overrun guarantee as the
// Postgres backend. Counters expire shortly after their period ends.
type RedisLedger struct {
	client *redis.Client
	now    func() time.Time
}

// RedisLedgerOption configures a RedisLedger.
type RedisLedgerOption func(*RedisLedger)

// WithRedisClock overrides the ledger clock for tests.
func WithRedisClock(now func() time.Time) RedisLedgerOption {
	return func(l *RedisLedger) {
		if now != nil {
			l.now = now
		}
	}
}

// NewRedisLedger creates a ledger on top of an existing Redis client.
func NewRedisLedger(client *redis.Client, opts ...RedisLedgerOption) *RedisLedger {
	l := &RedisLedger{
		client: client,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// expiryGrace keeps expired-period counters readable for a short while so
// end-of-period reports do not race the expiry.
const expiryGrace = 72 * time.Hour

// tryIncrementScript rejects when the counter has reached a non-negative
// limit, otherwise increments and refreshes the key expiry.
// Returns {accepted, count}.
var tryIncrementScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local limit = tonumber(ARGV[1])
if limit >= 0 and current >= limit then
    return {0, current}
end
current = redis.call('INCR', KEYS[1])
redis.call('PEXPIREAT', KEYS[1], ARGV[2])
return {1, current}
`)

func (l *RedisLedger) TryIncrement(ctx context.Context, userID uuid.UUID, feature quota.Feature, limit int64) (IncrementResult, error) {
	period := PeriodFor(l.now())
	key := l.key(userID, feature, period)
	expireAt := period.End.Add(expiryGrace).UnixMilli()

	raw, err := tryIncrementScript.Run(ctx, l.client, []string{key}, limit, expireAt).Slice()
	if err != nil {
		return IncrementResult{}, errors.Join(ErrFailedToRecordUsage, err)
	}
	if len(raw) != 2 {
		return IncrementResult{}, errors.Join(ErrFailedToRecordUsage,
			fmt.Errorf("unexpected script reply of %d elements", len(raw)))
	}

	accepted, ok1 := raw[0].(int64)
	count, ok2 := raw[1].(int64)
	if !ok1 || !ok2 {
		return IncrementResult{}, errors.Join(ErrFailedToRecordUsage,
			fmt.Errorf("unexpected script reply types %T, %T", raw[0], raw[1]))
	}

	return IncrementResult{Accepted: accepted == 1, Count: count}, nil
}

func (l *RedisLedger) CurrentUsage(ctx context.Context, userID uuid.UUID, feature quota.Feature) (int64, error) {
	key := l.key(userID, feature, PeriodFor(l.now()))

	count, err := l.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Join(ErrFailedToReadUsage, err)
	}
	return count, nil
}

func (l *RedisLedger) key(userID uuid.UUID, feature quota.Feature, period Period) string {
	return fmt.Sprintf("usage:%s:%s:%s", userID, feature, period.Start.Format("2006-01"))
}
