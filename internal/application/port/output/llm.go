package output

import (
	"context"

	"bpm-agent/internal/domain/entity"
)

// LLMPort is the language-model collaborator boundary.
type LLMPort interface {
	// Classify turns free text into a typed intent with extracted entities.
	// A non-nil error or a low-confidence result makes the orchestrator
	// fall back to deterministic keyword classification.
	Classify(ctx context.Context, message string, hints map[string]any) (*entity.IntentResult, error)

	// ChatStream generates a conversational reply as a token stream,
	// invoking onChunk per delta in generation order, and returns the
	// concatenated full text. An error from onChunk aborts generation.
	ChatStream(ctx context.Context, history []entity.Message, message string, onChunk func(string) error) (string, error)
}
