package input

import (
	"context"

	"bpm-agent/internal/domain/entity"
)

// Orchestrator is the per-session conversational controller. Turns are
// strictly sequential: callers must drain one Handle stream before the
// next call.
type Orchestrator interface {
	// Handle processes one user turn and returns its ordered event stream.
	// The channel is closed after exactly one terminal event. If ctx is
	// canceled mid-turn, the stream is abandoned without further events.
	Handle(ctx context.Context, message, kind string) <-chan entity.Event

	// ProcessInvoice merges an OCR result into the session's extracted
	// data and, when a page is loaded, auto-fills the new fields. Called
	// from the upload path.
	ProcessInvoice(ctx context.Context, inv *entity.Invoice) *entity.Completion

	// Cleanup releases the session's automation resources. Idempotent;
	// safe to call from both the disconnect and completion paths.
	Cleanup()
}
