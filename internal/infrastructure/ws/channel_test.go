package ws

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"bpm-agent/internal/domain/entity"
)

type fakeConn struct {
	mu       sync.Mutex
	written  []any
	controls []int
	writeErr error
	// failAfter makes WriteJSON fail once this many frames were accepted.
	failAfter int
	closed    int
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	if c.failAfter > 0 && len(c.written) >= c.failAfter {
		return errors.New("connection reset")
	}
	c.written = append(c.written, v)
	return nil
}

func (c *fakeConn) frames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.written)
}

func (c *fakeConn) WriteControl(messageType int, _ []byte, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controls = append(c.controls, messageType)
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func TestChannel_SendAndFailure(t *testing.T) {
	conn := &fakeConn{}
	ch := newChannel(conn)

	env := newEnvelope("status")
	env.Message = "hello"
	if err := ch.send(env); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if len(conn.written) != 1 {
		t.Fatalf("written %d frames, want 1", len(conn.written))
	}

	conn.writeErr = errors.New("broken pipe")
	if err := ch.send(env); err == nil {
		t.Fatal("expected write error to surface")
	}
}

func TestChannel_CloseOnce(t *testing.T) {
	conn := &fakeConn{}
	ch := newChannel(conn)

	ch.Close()
	ch.Close()
	ch.closeWith(CloseUnknownSession, "late")

	if conn.closed != 1 {
		t.Errorf("conn closed %d times, want 1", conn.closed)
	}
	// closeWith after Close must not emit a close frame either.
	if len(conn.controls) != 0 {
		t.Errorf("unexpected control frames: %v", conn.controls)
	}
}

func TestChannel_CloseWithSendsCloseFrame(t *testing.T) {
	conn := &fakeConn{}
	ch := newChannel(conn)

	ch.closeWith(CloseInvalidToken, "invalid token")

	if len(conn.controls) != 1 || conn.controls[0] != websocket.CloseMessage {
		t.Fatalf("controls = %v, want one close frame", conn.controls)
	}
	if conn.closed != 1 {
		t.Errorf("conn closed %d times, want 1", conn.closed)
	}
}

func TestEnvelopeFor(t *testing.T) {
	tests := []struct {
		name     string
		event    entity.Event
		wantType string
		check    func(t *testing.T, env envelope)
	}{
		{
			name:     "intent",
			event:    entity.IntentEvent(&entity.IntentResult{Intent: entity.IntentExpenseReport, Confidence: 0.8}),
			wantType: "intent",
			check: func(t *testing.T, env envelope) {
				if env.Intent != "expense_report" || env.Confidence != 0.8 {
					t.Errorf("env = %+v", env)
				}
			},
		},
		{
			name:     "chunk",
			event:    entity.ChunkEvent("部分"),
			wantType: "message_chunk",
			check: func(t *testing.T, env envelope) {
				if env.Message != "部分" {
					t.Errorf("message = %q", env.Message)
				}
			},
		},
		{
			name: "complete",
			event: entity.CompleteEvent(&entity.Completion{
				Message: "完成",
				Kind:    entity.CompletionSuccess,
				Intent:  entity.IntentFormFilling,
				Actions: []entity.Action{{"type": "form_filled"}},
			}),
			wantType: "message_complete",
			check: func(t *testing.T, env envelope) {
				if env.Kind != "success" || env.Intent != "form_filling" || len(env.Actions) != 1 {
					t.Errorf("env = %+v", env)
				}
			},
		},
		{
			name:     "error",
			event:    entity.ErrorEvent("出错了"),
			wantType: "error",
			check: func(t *testing.T, env envelope) {
				if env.Message != "出错了" {
					t.Errorf("message = %q", env.Message)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := envelopeFor(tt.event)
			if env.Type != tt.wantType {
				t.Fatalf("type = %s, want %s", env.Type, tt.wantType)
			}
			if env.Timestamp == 0 {
				t.Error("timestamp not set")
			}
			tt.check(t, env)
		})
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	rt := &runtime{ch: newChannel(&fakeConn{})}

	reg.put("s1", rt)
	if !reg.Connected("s1") {
		t.Fatal("s1 should be connected")
	}

	// A stale teardown must not evict a fresh runtime.
	fresh := &runtime{ch: newChannel(&fakeConn{})}
	reg.put("s1", fresh)
	reg.remove("s1", rt)
	if !reg.Connected("s1") {
		t.Error("stale remove evicted the fresh runtime")
	}

	reg.remove("s1", fresh)
	if reg.Connected("s1") {
		t.Error("s1 should be gone")
	}
	if _, ok := reg.Orchestrator("s1"); ok {
		t.Error("no orchestrator expected after removal")
	}
}
