package user

import (
	"database/sql"
	"time"
)

// User represents a registered user whose yearly events are scheduled.
// The registry CRUD surface is owned elsewhere; the core consumes these
// fields read-mostly.
type User struct {
	ID        int64
	FirstName string
	LastName  sql.NullString // To handle optional last name
	BirthDate time.Time      // Calendar date; only month/day/year are meaningful
	TimeZone  string         // IANA zone identifier, e.g. "Asia/Jakarta"
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FullName renders the display name used in outbound messages.
func (u *User) FullName() string {
	if u.LastName.Valid && u.LastName.String != "" {
		return u.FirstName + " " + u.LastName.String
	}
	return u.FirstName
}
