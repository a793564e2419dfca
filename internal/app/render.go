package app

import (
	"fmt"

	"birthday_notification_service/internal/domain/occurrence"
	"birthday_notification_service/internal/domain/user"
)

// ErrUnknownEventKind marks a message whose event kind has no renderer.
// It is a per-message data-quality condition, not a delivery failure.
var ErrUnknownEventKind = fmt.Errorf("no renderer registered for event kind")

// Renderer produces the outbound message text for one user.
type Renderer interface {
	Render(u *user.User) string
}

// RendererFunc adapts a plain function to the Renderer interface.
type RendererFunc func(u *user.User) string

func (f RendererFunc) Render(u *user.User) string { return f(u) }

// RenderRegistry selects the rendering strategy by event kind. The
// scheduling, recovery and delivery machinery never inspects the kind
// beyond this lookup.
type RenderRegistry map[occurrence.EventKind]Renderer

// NewRenderRegistry returns the registry with the built-in kinds.
func NewRenderRegistry() RenderRegistry {
	return RenderRegistry{
		occurrence.KindBirthday: RendererFunc(func(u *user.User) string {
			return fmt.Sprintf("Hey, %s it's your birthday", u.FullName())
		}),
	}
}

// Render renders the message for the given kind, or reports
// ErrUnknownEventKind.
func (r RenderRegistry) Render(kind occurrence.EventKind, u *user.User) (string, error) {
	renderer, ok := r[kind]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownEventKind, kind)
	}
	return renderer.Render(u), nil
}
