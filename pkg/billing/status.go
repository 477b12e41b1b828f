package billing

// Status enumerates the subscription lifecycle states. No other values are
// ever stored; provider payloads carrying an unrecognized status are logged
// and dropped at the reconciliation boundary.
type Status string

const (
	StatusTrialing Status = "trialing"
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusUnpaid   Status = "unpaid"
	StatusCanceled Status = "canceled"
)

var knownStatuses = map[Status]struct{}{
	StatusTrialing: {},
	StatusActive:   {},
	StatusPastDue:  {},
	StatusUnpaid:   {},
	StatusCanceled: {},
}

// ParseStatus maps a provider-reported status string onto the enumerated
// type. Returns ErrUnknownStatus for anything outside the known set.
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if _, ok := knownStatuses[status]; !ok {
		return "", ErrUnknownStatus
	}
	return status, nil
}

// GrantsAccess reports whether the status entitles the user to metered
// features. Trialing and active obviously do; past_due keeps access while
// the provider retries payment (dunning grace).
func (s Status) GrantsAccess() bool {
	switch s {
	case StatusTrialing, StatusActive, StatusPastDue:
		return true
	default:
		return false
	}
}

// paymentTransitions is the central transition table for the two invoice
// events, which are explicit status transitions rather than full-state
// snapshots. An absent (event, from) pair means the event is a no-op for
// that state. Notably payment_succeeded never touches an already-active
// subscription, which is what makes its replay idempotent.
var paymentTransitions = map[EventType]map[Status]Status{
	EventInvoicePaymentSucceeded: {
		StatusPastDue: StatusActive,
	},
	EventInvoicePaymentFailed: {
		StatusTrialing: StatusPastDue,
		StatusActive:   StatusPastDue,
		StatusPastDue:  StatusPastDue,
		StatusUnpaid:   StatusPastDue,
		StatusCanceled: StatusPastDue,
	},
}

// paymentTransition resolves the target status for an invoice event given
// the subscription's current status. ok is false when the event must not
// change the state.
func paymentTransition(event EventType, from Status) (Status, bool) {
	table, ok := paymentTransitions[event]
	if !ok {
		return "", false
	}
	to, ok := table[from]
	if !ok || to == from {
		return "", false
	}
	return to, true
}
