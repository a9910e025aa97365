package entity

type EventType string

const (
	EventIntent   EventType = "intent"
	EventChunk    EventType = "chunk"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Action is a free-form instruction attached to a completion, telling the
// client what happened or what to do next (request an upload, show filled
// fields, and so on).
type Action map[string]any

// CompletionKind labels the outcome of a turn inside the terminal event.
type CompletionKind string

const (
	CompletionSuccess        CompletionKind = "success"
	CompletionPartialSuccess CompletionKind = "partial_success"
	CompletionRequestURL     CompletionKind = "request_url"
	CompletionRequestData    CompletionKind = "request_data"
	CompletionRequestUpload  CompletionKind = "request_upload"
	CompletionDataStored     CompletionKind = "data_stored"
	CompletionConversation   CompletionKind = "conversation"
	CompletionError          CompletionKind = "error"
)

// Completion is the payload of the one terminal Complete event per turn.
type Completion struct {
	Message string
	Kind    CompletionKind
	Intent  IntentType
	Actions []Action
}

// Event is one item in a turn's ordered stream: exactly one Intent first
// (when classification resolves), zero or more Chunks, then exactly one
// terminal Complete or Error.
type Event struct {
	Type       EventType
	Intent     *IntentResult
	Chunk      string
	Completion *Completion
	// ErrMessage is the user-safe text of an Error event. Raw error detail
	// stays in logs and task records.
	ErrMessage string
}

func IntentEvent(res *IntentResult) Event {
	return Event{Type: EventIntent, Intent: res}
}

func ChunkEvent(text string) Event {
	return Event{Type: EventChunk, Chunk: text}
}

func CompleteEvent(c *Completion) Event {
	return Event{Type: EventComplete, Completion: c}
}

func ErrorEvent(msg string) Event {
	return Event{Type: EventError, ErrMessage: msg}
}
