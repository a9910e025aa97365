package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"bpm-agent/internal/domain/entity"
	"bpm-agent/internal/usecase/validation"
)

const writeWait = 10 * time.Second

// Application close codes, beyond the RFC range gorilla predefines.
const (
	CloseMissingToken   = 4001
	CloseInvalidToken   = 4003
	CloseUnknownSession = 4004
)

// writeConn is the write side of a websocket connection. *websocket.Conn
// satisfies it; tests substitute a fake.
type writeConn interface {
	WriteJSON(v any) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Channel serializes writes to one session's connection. A write failure
// is terminal: the caller tears the session down, no retries.
type Channel struct {
	conn writeConn

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newChannel(conn writeConn) *Channel {
	return &Channel{conn: conn}
}

func (c *Channel) send(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *Channel) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(writeWait))
}

// closeWith sends a close frame with an application close code, then
// closes the connection.
func (c *Channel) closeWith(code int, reason string) {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		c.writeMu.Unlock()
		_ = c.conn.Close()
	})
}

func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}

// envelope is the JSON frame for every outbound event.
type envelope struct {
	Type       string                `json:"type"`
	Message    string                `json:"message,omitempty"`
	Intent     string                `json:"intent,omitempty"`
	Confidence float64               `json:"confidence,omitempty"`
	Kind       string                `json:"kind,omitempty"`
	Actions    []entity.Action       `json:"actions,omitempty"`
	Validation *validationAttachment `json:"validation,omitempty"`
	Timestamp  int64                 `json:"timestamp"`
}

type validationAttachment struct {
	Results []validation.Result `json:"results"`
	Summary validation.Summary  `json:"summary"`
}

// inbound is one client message starting a turn.
type inbound struct {
	Message     string            `json:"message"`
	MessageType string            `json:"message_type"`
	FormData    map[string]string `json:"form_data,omitempty"`
}

func newEnvelope(typ string) envelope {
	return envelope{Type: typ, Timestamp: time.Now().UnixMilli()}
}

// envelopeFor converts an orchestrator event to its wire frame.
func envelopeFor(ev entity.Event) envelope {
	switch ev.Type {
	case entity.EventIntent:
		env := newEnvelope("intent")
		if ev.Intent != nil {
			env.Intent = string(ev.Intent.Intent)
			env.Confidence = ev.Intent.Confidence
		}
		return env
	case entity.EventChunk:
		env := newEnvelope("message_chunk")
		env.Message = ev.Chunk
		return env
	case entity.EventComplete:
		env := newEnvelope("message_complete")
		if ev.Completion != nil {
			env.Message = ev.Completion.Message
			env.Intent = string(ev.Completion.Intent)
			env.Kind = string(ev.Completion.Kind)
			env.Actions = ev.Completion.Actions
		}
		return env
	default:
		env := newEnvelope("error")
		env.Message = ev.ErrMessage
		return env
	}
}
