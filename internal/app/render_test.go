package app

import (
	"database/sql"
	"testing"

	"birthday_notification_service/internal/domain/occurrence"
	"birthday_notification_service/internal/domain/user"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderRegistry_Birthday(t *testing.T) {
	reg := NewRenderRegistry()

	u := &user.User{FirstName: "Ana", LastName: sql.NullString{String: "Souza", Valid: true}}
	msg, err := reg.Render(occurrence.KindBirthday, u)
	require.NoError(t, err)
	assert.Equal(t, "Hey, Ana Souza it's your birthday", msg)

	// Missing last name falls back to the first name alone.
	u = &user.User{FirstName: "Budi"}
	msg, err = reg.Render(occurrence.KindBirthday, u)
	require.NoError(t, err)
	assert.Equal(t, "Hey, Budi it's your birthday", msg)
}

func TestRenderRegistry_UnknownKind(t *testing.T) {
	reg := NewRenderRegistry()

	_, err := reg.Render(occurrence.EventKind("WORK_ANNIVERSARY"), &user.User{FirstName: "Ana"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownEventKind)
}
