package database

import (
	"database/sql"
	"fmt"
)

// RunMigrations executes the schema migrations. Statements are idempotent
// so every replica can run them at startup.
func RunMigrations(db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name TEXT,
		birth_date DATE NOT NULL,
		time_zone TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	// The unique constraint on (user_id, event_kind, occurrence_date) is
	// the sole duplicate-send guard; every creation path goes through an
	// insert-if-absent against it. Rows are never deleted.
	`CREATE TABLE IF NOT EXISTS occurrences (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id),
		event_kind TEXT NOT NULL DEFAULT 'BIRTHDAY',
		occurrence_date DATE NOT NULL,
		scheduled_for_utc TIMESTAMPTZ NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		attempt_count INT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT occurrence_user_kind_date_unique UNIQUE (user_id, event_kind, occurrence_date)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_occurrences_due_pending
		ON occurrences (scheduled_for_utc) WHERE status = 'PENDING'`,

	`CREATE INDEX IF NOT EXISTS idx_occurrences_stale_queued
		ON occurrences (updated_at) WHERE status = 'QUEUED'`,

	`CREATE INDEX IF NOT EXISTS idx_users_active ON users (id) WHERE active`,
}
