package port

import (
	"context"

	"github.com/rl1809/guild-economy/internal/core/domain"
)

// PageRenderer is the display surface a browsing session draws on.
type PageRenderer interface {
	Render(ctx context.Context, page domain.Page) error

	// Acknowledge consumes a signal from the session owner, e.g. removes the reaction
	Acknowledge(ctx context.Context, signal domain.Signal) error

	// Teardown removes the view once the session ends
	Teardown(ctx context.Context) error
}
