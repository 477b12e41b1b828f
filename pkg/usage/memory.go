package usage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/entitlement/pkg/quota"
)

type counterKey struct {
	userID      uuid.UUID
	feature     quota.Feature
	periodStart time.Time
}

// MemoryLedger is a mutex-serialized in-memory Ledger for tests and
// development. Counters are keyed by (user, feature, period start), so a
// period rollover naturally starts from a fresh zero counter.
type MemoryLedger struct {
	mu       sync.Mutex
	counters map[counterKey]int64
	now      func() time.Time
}

// MemoryLedgerOption configures a MemoryLedger.
type MemoryLedgerOption func(*MemoryLedger)

// WithMemoryClock overrides the ledger's notion of "now" for tests that
// need to cross period boundaries deterministically.
func WithMemoryClock(now func() time.Time) MemoryLedgerOption {
	return func(l *MemoryLedger) {
		if now != nil {
			l.now = now
		}
	}
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger(opts ...MemoryLedgerOption) *MemoryLedger {
	l := &MemoryLedger{
		counters: make(map[counterKey]int64),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *MemoryLedger) TryIncrement(_ context.Context, userID uuid.UUID, feature quota.Feature, limit int64) (IncrementResult, error) {
	period := PeriodFor(l.now())
	key := counterKey{userID: userID, feature: feature, periodStart: period.Start}

	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.counters[key]
	if limit != quota.Unlimited && current >= limit {
		return IncrementResult{Accepted: false, Count: current}, nil
	}

	current++
	l.counters[key] = current
	return IncrementResult{Accepted: true, Count: current}, nil
}

func (l *MemoryLedger) CurrentUsage(_ context.Context, userID uuid.UUID, feature quota.Feature) (int64, error) {
	period := PeriodFor(l.now())
	key := counterKey{userID: userID, feature: feature, periodStart: period.Start}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counters[key], nil
}
