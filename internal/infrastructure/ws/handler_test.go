package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"bpm-agent/internal/application/port/input"
	"bpm-agent/internal/application/port/output"
	"bpm-agent/internal/domain/entity"
	"bpm-agent/internal/usecase/validation"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func (l nopLogger) WithField(string, any) output.LoggerPort { return l }
func (nopLogger) Close() error                              { return nil }

type handlerStore struct {
	sess *entity.Session
}

func (s *handlerStore) ResolveToken(_ context.Context, token string) (string, error) {
	if token != "tok" {
		return "", output.ErrInvalidToken
	}
	return s.sess.UserID, nil
}

func (s *handlerStore) GetSession(_ context.Context, sessionID string) (*entity.Session, error) {
	if sessionID != s.sess.ID {
		return nil, output.ErrSessionNotFound
	}
	return s.sess, nil
}

func (s *handlerStore) CreateSession(context.Context, *entity.Session) error { return nil }
func (s *handlerStore) ListSessions(context.Context, string) ([]*entity.Session, error) {
	return nil, nil
}
func (s *handlerStore) SetSessionTargetURL(context.Context, string, string) error { return nil }
func (s *handlerStore) CloseSession(context.Context, string) error                { return nil }
func (s *handlerStore) CreateTask(context.Context, *entity.TaskRecord) error      { return nil }
func (s *handlerStore) FinishTask(context.Context, *entity.TaskRecord) error      { return nil }
func (s *handlerStore) ListTasks(context.Context, string) ([]*entity.TaskRecord, error) {
	return nil, nil
}

// endlessOrchestrator streams chunks until its turn context is canceled,
// so a turn only ends through transport teardown.
type endlessOrchestrator struct {
	cleanups atomic.Int32
	canceled chan struct{}
}

func (o *endlessOrchestrator) Handle(ctx context.Context, _, _ string) <-chan entity.Event {
	events := make(chan entity.Event)
	go func() {
		defer close(events)
		send := func(ev entity.Event) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		if !send(entity.IntentEvent(&entity.IntentResult{Intent: entity.IntentQuestionAnswering, Confidence: 0.9})) {
			close(o.canceled)
			return
		}
		for {
			if !send(entity.ChunkEvent("片段")) {
				close(o.canceled)
				return
			}
			time.Sleep(2 * time.Millisecond)
		}
	}()
	return events
}

func (o *endlessOrchestrator) ProcessInvoice(context.Context, *entity.Invoice) *entity.Completion {
	return &entity.Completion{}
}

func (o *endlessOrchestrator) Cleanup() { o.cleanups.Add(1) }

func TestHandler_RelayTurnWriteFailure(t *testing.T) {
	conn := &fakeConn{failAfter: 2}
	ch := newChannel(conn)
	h := NewHandler(NewRegistry(), nil, nil, validation.NewEngine(), nopLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan entity.Event)
	go func() {
		defer close(events)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			select {
			case events <- entity.ChunkEvent("片段"):
			case <-ctx.Done():
				return
			}
		}
	}()

	if h.relayTurn(cancel, ch, events, nil) {
		t.Fatal("expected relay to report the connection dead")
	}
	select {
	case <-ctx.Done():
	default:
		t.Error("write failure did not cancel the turn")
	}
	if got := conn.frames(); got != 2 {
		t.Errorf("frames written = %d, want 2 (none after the failure)", got)
	}
}

func TestHandler_DisconnectMidStream(t *testing.T) {
	sess := &entity.Session{ID: "s1", UserID: "alice", Active: true, CreatedAt: time.Now()}
	orch := &endlessOrchestrator{canceled: make(chan struct{})}
	reg := NewRegistry()
	factory := func(*entity.Session) input.Orchestrator { return orch }
	h := NewHandler(reg, &handlerStore{sess: sess}, factory, validation.NewEngine(), nopLogger{})

	r := chi.NewRouter()
	r.Get("/ws/sessions/{sessionID}", h.ServeHTTP)
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/sessions/s1?token=tok"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var welcome envelope
	if err := conn.ReadJSON(&welcome); err != nil {
		t.Fatalf("welcome: %v", err)
	}
	if welcome.Type != "status" {
		t.Fatalf("welcome type = %s, want status", welcome.Type)
	}

	if err := conn.WriteJSON(map[string]string{"message": "你好"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	// Read into the chunk stream, then drop the connection mid-turn.
	sawChunk := false
	for i := 0; i < 20 && !sawChunk; i++ {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("read: %v", err)
		}
		sawChunk = env.Type == "message_chunk"
	}
	if !sawChunk {
		t.Fatal("never saw a chunk frame")
	}
	conn.Close()

	select {
	case <-orch.canceled:
	case <-time.After(5 * time.Second):
		t.Fatal("turn was not canceled after disconnect")
	}

	deadline := time.After(5 * time.Second)
	for orch.cleanups.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("automation cleanup never ran")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	// Teardown settles; cleanup must have run exactly once.
	time.Sleep(50 * time.Millisecond)
	if n := orch.cleanups.Load(); n != 1 {
		t.Fatalf("cleanup ran %d times, want 1", n)
	}
	if reg.Connected("s1") {
		t.Error("session still registered after teardown")
	}
}
