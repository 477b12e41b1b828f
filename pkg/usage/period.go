package usage

import "time"

// Period is the billing window a usage counter accumulates over.
// Start is inclusive, End is exclusive.
type Period struct {
	Start time.Time
	End   time.Time
}

// PeriodFor returns the UTC calendar-month period containing the given
// instant. Every component computes period boundaries through this function
// so that counters, storage keys, and reports always agree.
func PeriodFor(now time.Time) Period {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Period{
		Start: start,
		End:   start.AddDate(0, 1, 0),
	}
}

// Contains reports whether the instant falls inside the period.
func (p Period) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(p.Start) && t.Before(p.End)
}
