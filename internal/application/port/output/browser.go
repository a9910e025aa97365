package output

import (
	"context"

	"bpm-agent/internal/domain/entity"
)

// BrowserPort is the automation-driver boundary. One handle is exclusively
// owned by one orchestrator instance for the session's lifetime.
type BrowserPort interface {
	Navigate(ctx context.Context, url string) error
	Fill(ctx context.Context, selector, text string) error
	SelectOption(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error

	// Snapshot analyzes the freshly loaded page and returns a complete,
	// new PageState. Callers must replace any previous state wholesale.
	Snapshot(ctx context.Context) (*entity.PageState, error)

	CurrentURL() string
	Close()
}

// BrowserFactory launches a fresh automation handle for one session.
// Browsers are expensive, so the orchestrator calls this lazily on the
// first turn that needs a page.
type BrowserFactory func(ctx context.Context) (BrowserPort, error)
