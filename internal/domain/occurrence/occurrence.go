package occurrence

import "time"

// Occurrence represents one scheduled instance of a yearly event for one
// user. The pair (user_id, event_kind, occurrence_date) is unique at the
// storage layer; that constraint is the sole duplicate-send guard, so every
// writer path creates rows through an insert-if-absent operation. Rows are
// never deleted: the table doubles as the durable idempotency ledger.
type Occurrence struct {
	ID              int64
	UserID          int64
	EventKind       EventKind
	OccurrenceDate  time.Time // Calendar date in the user's local zone
	ScheduledForUTC time.Time // Resolved UTC instant for the local target time
	Status          Status
	AttemptCount    int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Terminal reports whether the occurrence has reached an immutable state.
func (o *Occurrence) Terminal() bool {
	return o.Status == StatusSent || o.Status == StatusFailedPermanent
}
