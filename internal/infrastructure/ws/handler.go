package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"bpm-agent/internal/application/port/input"
	"bpm-agent/internal/application/port/output"
	"bpm-agent/internal/domain/entity"
	"bpm-agent/internal/usecase/validation"
)

const (
	pongWait      = 70 * time.Second
	pingPeriod    = 25 * time.Second
	maxMessageLen = 1 << 20

	welcomeMessage = "您好！我是BPM流程助手，可以帮您填写报销、请假、采购等表单。" +
		"您可以发送表单页面URL、上传发票，或直接告诉我要办理的业务。"
	processingMessage = "正在处理您的请求..."
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// OrchestratorFactory builds the per-session orchestrator when its
// channel connects.
type OrchestratorFactory func(sess *entity.Session) input.Orchestrator

// Handler upgrades /ws/sessions/{sessionID} connections and runs the
// per-session read loop.
type Handler struct {
	registry  *Registry
	store     output.StorePort
	newOrch   OrchestratorFactory
	validator *validation.Engine
	log       output.LoggerPort
}

func NewHandler(reg *Registry, store output.StorePort, factory OrchestratorFactory, validator *validation.Engine, log output.LoggerPort) *Handler {
	return &Handler{
		registry:  reg,
		store:     store,
		newOrch:   factory,
		validator: validator,
		log:       log.WithField("component", "ws"),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", "error", err)
		return
	}
	ch := newChannel(conn)

	// Auth happens after the upgrade so the client gets a typed close
	// code instead of a bare HTTP error.
	token := bearerToken(r)
	if token == "" {
		ch.closeWith(CloseMissingToken, "missing token")
		return
	}
	userID, err := h.store.ResolveToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, output.ErrInvalidToken) {
			ch.closeWith(CloseInvalidToken, "invalid token")
		} else {
			h.log.Error("token lookup failed", "error", err)
			ch.closeWith(websocket.CloseInternalServerErr, "auth unavailable")
		}
		return
	}

	sess, err := h.store.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, output.ErrSessionNotFound) {
			ch.closeWith(CloseUnknownSession, "unknown session")
		} else {
			h.log.Error("session lookup failed", "error", err)
			ch.closeWith(websocket.CloseInternalServerErr, "session unavailable")
		}
		return
	}
	if sess.UserID != userID || !sess.Active {
		ch.closeWith(CloseUnknownSession, "unknown session")
		return
	}

	h.serve(r.Context(), conn, ch, sess)
}

func (h *Handler) serve(parent context.Context, conn *websocket.Conn, ch *Channel, sess *entity.Session) {
	log := h.log.WithField("session", sess.ID)

	ctx, cancel := context.WithCancel(parent)
	orch := h.newOrch(sess)
	rt := &runtime{orch: orch, ch: ch}
	h.registry.put(sess.ID, rt)

	defer func() {
		cancel()
		h.registry.remove(sess.ID, rt)
		orch.Cleanup()
		ch.Close()
		log.Info("session disconnected")
	}()

	conn.SetReadLimit(maxMessageLen)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := ch.ping(); err != nil {
					return
				}
			case <-stopPing:
				return
			}
		}
	}()

	welcome := newEnvelope("status")
	welcome.Message = welcomeMessage
	if err := ch.send(welcome); err != nil {
		return
	}
	log.Info("session connected")

	// One turn at a time: each inbound message's event stream is fully
	// drained before the next read.
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var in inbound
		if err := json.Unmarshal(payload, &in); err != nil {
			env := newEnvelope("error")
			env.Message = "消息格式不正确"
			if err := ch.send(env); err != nil {
				return
			}
			continue
		}
		if strings.TrimSpace(in.Message) == "" {
			env := newEnvelope("error")
			env.Message = "消息内容不能为空"
			if err := ch.send(env); err != nil {
				return
			}
			continue
		}
		if in.MessageType == "" {
			in.MessageType = "text"
		}

		var attachment *validationAttachment
		if len(in.FormData) > 0 {
			results := h.validator.Validate(in.FormData)
			attachment = &validationAttachment{
				Results: results,
				Summary: validation.Summarize(results),
			}
		}

		status := newEnvelope("status")
		status.Message = processingMessage
		if err := ch.send(status); err != nil {
			return
		}

		if !h.relayTurn(cancel, ch, orch.Handle(ctx, in.Message, in.MessageType), attachment) {
			return
		}
	}
}

// relayTurn forwards one turn's events. A write failure cancels the turn
// and reports the connection dead; the stream is still drained so the
// producer can unwind.
func (h *Handler) relayTurn(cancel context.CancelFunc, ch *Channel, events <-chan entity.Event, attachment *validationAttachment) bool {
	alive := true
	for ev := range events {
		if !alive {
			continue
		}
		env := envelopeFor(ev)
		if ev.Type == entity.EventComplete {
			env.Validation = attachment
		}
		if err := ch.send(env); err != nil {
			h.log.Warn("event write failed", "error", err)
			cancel()
			alive = false
		}
	}
	return alive
}

// bearerToken pulls the token from the Authorization header or, for
// browser clients that cannot set headers on websockets, the query.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
