// Package command implements the canonical load→decide→append→publish
// pipeline shared by every aggregate's command handlers.
package command

import (
	"context"

	"github.com/Merodami/book-library-tool-ddd-sub001/internal/event"
)

// Publisher is the narrow slice of the message bus a command handler needs:
// fire-and-forget, at-least-once publication of an already-appended event.
type Publisher interface {
	Publish(ctx context.Context, e event.Envelope) error
}
