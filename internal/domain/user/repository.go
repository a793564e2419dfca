package user

import (
	"context"
)

// Repository defines the operations for persisting and retrieving User entities.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	Update(ctx context.Context, u *User) error // FirstName, LastName, BirthDate, TimeZone, Active
	Deactivate(ctx context.Context, id int64) error
	ListActive(ctx context.Context) ([]*User, error)
	ListAll(ctx context.Context) ([]*User, error) // For operator tooling
}
