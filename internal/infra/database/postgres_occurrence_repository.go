// internal/infra/database/postgres_occurrence_repository.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"birthday_notification_service/internal/domain/occurrence"
)

// Custom errors specific to occurrence repository
var ErrOccurrenceNotFound = fmt.Errorf("occurrence not found")
var ErrStatusConflict = fmt.Errorf("occurrence status conflict: row is not in the expected prior status")

const occurrenceColumns = `id, user_id, event_kind, occurrence_date, scheduled_for_utc, status, attempt_count, created_at, updated_at`

type PostgresOccurrenceRepository struct {
	db *sql.DB
}

func NewPostgresOccurrenceRepository(db *sql.DB) *PostgresOccurrenceRepository {
	return &PostgresOccurrenceRepository{db: db}
}

// CreateIfAbsent inserts a PENDING occurrence, relying on the
// occurrence_user_kind_date_unique constraint to absorb concurrent
// creation attempts. A losing writer gets created=false and no error:
// the duplicate attempt is expected, not a failure.
func (r *PostgresOccurrenceRepository) CreateIfAbsent(ctx context.Context, o *occurrence.Occurrence) (bool, error) {
	query := `INSERT INTO occurrences (user_id, event_kind, occurrence_date, scheduled_for_utc, status, attempt_count)
               VALUES ($1, $2, $3, $4, $5, $6)
               ON CONFLICT ON CONSTRAINT occurrence_user_kind_date_unique DO NOTHING
               RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query,
		o.UserID, o.EventKind, o.OccurrenceDate, o.ScheduledForUTC, occurrence.StatusPending, o.AttemptCount,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil // another writer created the row first
		}
		return false, fmt.Errorf("error creating occurrence: %w", err)
	}
	o.Status = occurrence.StatusPending
	return true, nil
}

func (r *PostgresOccurrenceRepository) GetByID(ctx context.Context, id int64) (*occurrence.Occurrence, error) {
	query := `SELECT ` + occurrenceColumns + ` FROM occurrences WHERE id = $1`
	o := occurrence.Occurrence{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&o.ID, &o.UserID, &o.EventKind, &o.OccurrenceDate, &o.ScheduledForUTC,
		&o.Status, &o.AttemptCount, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrOccurrenceNotFound
		}
		return nil, fmt.Errorf("error getting occurrence by ID: %w", err)
	}
	return &o, nil
}

func (r *PostgresOccurrenceRepository) MarkQueued(ctx context.Context, id int64) error {
	return r.transition(ctx, id,
		`UPDATE occurrences SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
		occurrence.StatusQueued, id, occurrence.StatusPending)
}

func (r *PostgresOccurrenceRepository) TouchQueued(ctx context.Context, id int64) error {
	return r.transition(ctx, id,
		`UPDATE occurrences SET updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, occurrence.StatusQueued)
}

func (r *PostgresOccurrenceRepository) MarkSent(ctx context.Context, id int64) error {
	return r.transition(ctx, id,
		`UPDATE occurrences SET status = $1, updated_at = NOW() WHERE id = $2 AND status IN ($3, $4)`,
		occurrence.StatusSent, id, occurrence.StatusPending, occurrence.StatusQueued)
}

func (r *PostgresOccurrenceRepository) MarkFailedPermanent(ctx context.Context, id int64) error {
	return r.transition(ctx, id,
		`UPDATE occurrences SET status = $1, updated_at = NOW() WHERE id = $2 AND status IN ($3, $4)`,
		occurrence.StatusFailedPermanent, id, occurrence.StatusPending, occurrence.StatusQueued)
}

// transition runs a conditional status update. The WHERE clause carries
// the expected prior status, making the update a compare-and-set: the
// only ordering primitive two racing workers need.
func (r *PostgresOccurrenceRepository) transition(ctx context.Context, id int64, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("error transitioning occurrence %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error checking transition result for occurrence %d: %w", id, err)
	}
	if affected == 1 {
		return nil
	}

	// Nothing matched: distinguish a missing row from a lost CAS race.
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM occurrences WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("error checking occurrence %d existence: %w", id, err)
	}
	if !exists {
		return ErrOccurrenceNotFound
	}
	return ErrStatusConflict
}

func (r *PostgresOccurrenceRepository) IncrementAttempt(ctx context.Context, id int64) (int, error) {
	query := `UPDATE occurrences SET attempt_count = attempt_count + 1, updated_at = NOW()
               WHERE id = $1 RETURNING attempt_count`
	var count int
	err := r.db.QueryRowContext(ctx, query, id).Scan(&count)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrOccurrenceNotFound
		}
		return 0, fmt.Errorf("error incrementing attempt count for occurrence %d: %w", id, err)
	}
	return count, nil
}

func (r *PostgresOccurrenceRepository) ListDuePending(ctx context.Context, dueBy time.Time, limit int) ([]*occurrence.Occurrence, error) {
	query := `SELECT ` + occurrenceColumns + ` FROM occurrences
               WHERE status = $1 AND scheduled_for_utc <= $2
               ORDER BY scheduled_for_utc LIMIT $3`
	return r.list(ctx, query, occurrence.StatusPending, dueBy, limit)
}

func (r *PostgresOccurrenceRepository) ListStaleQueued(ctx context.Context, staleBefore time.Time, limit int) ([]*occurrence.Occurrence, error) {
	query := `SELECT ` + occurrenceColumns + ` FROM occurrences
               WHERE status = $1 AND updated_at < $2
               ORDER BY updated_at LIMIT $3`
	return r.list(ctx, query, occurrence.StatusQueued, staleBefore, limit)
}

func (r *PostgresOccurrenceRepository) list(ctx context.Context, query string, args ...interface{}) ([]*occurrence.Occurrence, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing occurrences: %w", err)
	}
	defer rows.Close()

	var result []*occurrence.Occurrence
	for rows.Next() {
		o := occurrence.Occurrence{}
		if err := rows.Scan(
			&o.ID, &o.UserID, &o.EventKind, &o.OccurrenceDate, &o.ScheduledForUTC,
			&o.Status, &o.AttemptCount, &o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning occurrence row: %w", err)
		}
		result = append(result, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating occurrence rows: %w", err)
	}
	return result, nil
}

func (r *PostgresOccurrenceRepository) CountByStatus(ctx context.Context) (map[occurrence.Status]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM occurrences GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("error counting occurrences by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[occurrence.Status]int)
	for rows.Next() {
		var s occurrence.Status
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, fmt.Errorf("error scanning status count: %w", err)
		}
		counts[s] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status counts: %w", err)
	}
	return counts, nil
}
