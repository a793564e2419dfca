package occurrence

import (
	"context"
	"time"
)

// Repository defines the persistence operations for Occurrence rows.
//
// CreateIfAbsent and the conditional status transitions are the only
// write primitives: creation relies on the storage-level unique
// constraint, and transitions are compare-and-set style updates guarded
// by the expected prior status. No blind overwrites exist, so correctness
// holds under arbitrary process counts and restart timing.
type Repository interface {
	// CreateIfAbsent inserts the occurrence in PENDING, silently absorbing
	// the unique-constraint race. It reports whether this call created the
	// row; false means another writer already has.
	CreateIfAbsent(ctx context.Context, o *Occurrence) (created bool, err error)

	GetByID(ctx context.Context, id int64) (*Occurrence, error)

	// MarkQueued transitions PENDING -> QUEUED. Returns ErrStatusConflict
	// (from the infra package) when the row is no longer PENDING.
	MarkQueued(ctx context.Context, id int64) error

	// TouchQueued refreshes updated_at on a QUEUED row after a re-publish,
	// so the staleness clock restarts without a status change.
	TouchQueued(ctx context.Context, id int64) error

	// MarkSent transitions a non-terminal row to SENT.
	MarkSent(ctx context.Context, id int64) error

	// MarkFailedPermanent transitions a non-terminal row to FAILED_PERMANENT.
	MarkFailedPermanent(ctx context.Context, id int64) error

	// IncrementAttempt bumps attempt_count and returns the new value.
	IncrementAttempt(ctx context.Context, id int64) (int, error)

	// ListDuePending returns PENDING rows with scheduled_for_utc <= dueBy.
	ListDuePending(ctx context.Context, dueBy time.Time, limit int) ([]*Occurrence, error)

	// ListStaleQueued returns QUEUED rows not touched since staleBefore,
	// i.e. rows whose queue message was likely lost before delivery.
	ListStaleQueued(ctx context.Context, staleBefore time.Time, limit int) ([]*Occurrence, error)

	// CountByStatus reports the occurrence population per status for the
	// operator-facing status surface.
	CountByStatus(ctx context.Context) (map[Status]int, error)
}
