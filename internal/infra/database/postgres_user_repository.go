// internal/infra/database/postgres_user_repository.go
package database

import (
	"context"
	"database/sql"
	"fmt"

	"birthday_notification_service/internal/domain/user"
)

var ErrUserNotFound = fmt.Errorf("user not found")

type PostgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) Create(ctx context.Context, u *user.User) error {
	query := `INSERT INTO users (first_name, last_name, birth_date, time_zone, active)
               VALUES ($1, $2, $3, $4, $5)
               RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, u.FirstName, u.LastName, u.BirthDate, u.TimeZone, u.Active).
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error creating user: %w", err)
	}
	return nil
}

func (r *PostgresUserRepository) GetByID(ctx context.Context, id int64) (*user.User, error) {
	query := `SELECT id, first_name, last_name, birth_date, time_zone, active, created_at, updated_at
               FROM users WHERE id = $1`
	u := user.User{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.FirstName, &u.LastName, &u.BirthDate, &u.TimeZone, &u.Active, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("error getting user by ID: %w", err)
	}
	return &u, nil
}

// Update persists changed profile fields. Past occurrences are not
// touched: a time_zone or birth_date change only affects rows not yet
// created.
func (r *PostgresUserRepository) Update(ctx context.Context, u *user.User) error {
	query := `UPDATE users
               SET first_name = $1, last_name = $2, birth_date = $3, time_zone = $4, active = $5, updated_at = NOW()
               WHERE id = $6
               RETURNING updated_at`
	err := r.db.QueryRowContext(ctx, query, u.FirstName, u.LastName, u.BirthDate, u.TimeZone, u.Active, u.ID).
		Scan(&u.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrUserNotFound
		}
		return fmt.Errorf("error updating user: %w", err)
	}
	return nil
}

// Deactivate soft-deletes a user; the scanner stops considering them on
// the next cycle.
func (r *PostgresUserRepository) Deactivate(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("error deactivating user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error checking deactivate result: %w", err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *PostgresUserRepository) ListActive(ctx context.Context) ([]*user.User, error) {
	return r.list(ctx, `SELECT id, first_name, last_name, birth_date, time_zone, active, created_at, updated_at
               FROM users WHERE active = TRUE ORDER BY id`)
}

func (r *PostgresUserRepository) ListAll(ctx context.Context) ([]*user.User, error) {
	return r.list(ctx, `SELECT id, first_name, last_name, birth_date, time_zone, active, created_at, updated_at
               FROM users ORDER BY id`)
}

func (r *PostgresUserRepository) list(ctx context.Context, query string) ([]*user.User, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing users: %w", err)
	}
	defer rows.Close()

	var users []*user.User
	for rows.Next() {
		u := user.User{}
		if err := rows.Scan(&u.ID, &u.FirstName, &u.LastName, &u.BirthDate, &u.TimeZone, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("error scanning user row: %w", err)
		}
		users = append(users, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user rows: %w", err)
	}
	return users, nil
}
