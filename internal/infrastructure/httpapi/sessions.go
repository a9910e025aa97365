package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"bpm-agent/internal/application/port/output"
	"bpm-agent/internal/domain/entity"
)

type createSessionRequest struct {
	Name      string `json:"name"`
	TargetURL string `json:"target_url"`
}

type sessionResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	TargetURL string    `json:"target_url,omitempty"`
	Active    bool      `json:"active"`
	Connected bool      `json:"connected"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) sessionResponse(sess *entity.Session) sessionResponse {
	return sessionResponse{
		ID:        sess.ID,
		Name:      sess.Name,
		TargetURL: sess.TargetURL,
		Active:    sess.Active,
		Connected: s.registry.Connected(sess.ID),
		CreatedAt: sess.CreatedAt,
	}
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.Body != nil {
		// An empty body is a valid "create with defaults".
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	sess := &entity.Session{
		ID:        uuid.NewString(),
		UserID:    userID(r),
		Name:      req.Name,
		TargetURL: req.TargetURL,
		Active:    true,
		CreatedAt: time.Now(),
	}
	if sess.Name == "" {
		sess.Name = "会话 " + sess.CreatedAt.Format("01-02 15:04")
	}

	if err := s.store.CreateSession(r.Context(), sess); err != nil {
		s.log.Error("create session failed", "error", err)
		respondError(w, http.StatusInternalServerError, "create session failed")
		return
	}
	respondJSON(w, http.StatusCreated, s.sessionResponse(sess))
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListSessions(r.Context(), userID(r))
	if err != nil {
		s.log.Error("list sessions failed", "error", err)
		respondError(w, http.StatusInternalServerError, "list sessions failed")
		return
	}

	out := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, s.sessionResponse(sess))
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

// ownedSession loads the session named in the URL and enforces ownership.
func (s *Server) ownedSession(w http.ResponseWriter, r *http.Request) *entity.Session {
	return s.ownedSessionByID(w, r, chi.URLParam(r, "sessionID"))
}

// ownedSessionByID loads a session and enforces ownership. Foreign
// sessions read as not found, never as forbidden.
func (s *Server) ownedSessionByID(w http.ResponseWriter, r *http.Request, sessionID string) *entity.Session {
	sess, err := s.store.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, output.ErrSessionNotFound) {
			respondError(w, http.StatusNotFound, "session not found")
		} else {
			s.log.Error("get session failed", "error", err)
			respondError(w, http.StatusInternalServerError, "get session failed")
		}
		return nil
	}
	if sess.UserID != userID(r) {
		respondError(w, http.StatusNotFound, "session not found")
		return nil
	}
	return sess
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess := s.ownedSession(w, r)
	if sess == nil {
		return
	}
	respondJSON(w, http.StatusOK, s.sessionResponse(sess))
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	sess := s.ownedSession(w, r)
	if sess == nil {
		return
	}

	if err := s.store.CloseSession(r.Context(), sess.ID); err != nil {
		s.log.Error("close session failed", "error", err)
		respondError(w, http.StatusInternalServerError, "close session failed")
		return
	}
	s.registry.Disconnect(sess.ID)
	respondJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

type taskResponse struct {
	ID           string         `json:"id"`
	TaskType     string         `json:"task_type"`
	Status       string         `json:"status"`
	InputData    map[string]any `json:"input_data,omitempty"`
	AIAnalysis   map[string]any `json:"ai_analysis,omitempty"`
	Response     string         `json:"response,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

func (s *Server) sessionHistory(w http.ResponseWriter, r *http.Request) {
	sess := s.ownedSession(w, r)
	if sess == nil {
		return
	}

	tasks, err := s.store.ListTasks(r.Context(), sess.ID)
	if err != nil {
		s.log.Error("list tasks failed", "error", err)
		respondError(w, http.StatusInternalServerError, "list tasks failed")
		return
	}

	out := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskResponse{
			ID:           t.ID,
			TaskType:     t.TaskType,
			Status:       string(t.Status),
			InputData:    t.InputData,
			AIAnalysis:   t.AIAnalysis,
			Response:     t.Response,
			ErrorMessage: t.ErrorMessage,
			CreatedAt:    t.CreatedAt,
			CompletedAt:  t.CompletedAt,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"tasks": out})
}
