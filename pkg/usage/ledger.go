package usage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/entitlement/pkg/quota"
)

// IncrementResult is the outcome of an atomic increment attempt.
type IncrementResult struct {
	// Accepted reports whether the usage was recorded.
	Accepted bool
	// Count is the new counter value when accepted, or the current counter
	// value when rejected.
	Count int64
}

// Record is one per-(user, feature, period) usage counter.
type Record struct {
	UserID      uuid.UUID
	Feature     quota.Feature
	Count       int64
	PeriodStart time.Time
	PeriodEnd   time.Time
	Metadata    map[string]string
}

// Ledger tracks metered feature usage per user and billing period.
//
// TryIncrement is the only way counters change. The read-current-count,
// compare-to-limit, and increment form a single atomic unit with respect to
// concurrent calls for the same (user, feature, period): two concurrent
// calls at count = limit-1 never both succeed.
type Ledger interface {
	// TryIncrement records one use of the feature if the resulting count
	// stays within limit. limit follows the quota package conventions:
	// Unlimited (-1) always accepts and still counts for reporting,
	// NoAccess (0) always rejects without creating a counter.
	TryIncrement(ctx context.Context, userID uuid.UUID, feature quota.Feature, limit int64) (IncrementResult, error)

	// CurrentUsage returns the counter for the current period with no side
	// effects. A user with no recorded usage reads as zero.
	CurrentUsage(ctx context.Context, userID uuid.UUID, feature quota.Feature) (int64, error)
}
