package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"

	"bpm-agent/internal/application/port/output"
	"bpm-agent/internal/infrastructure/ws"
)

// Server carries the REST surface's collaborators. The websocket handler
// is mounted on the same router but owns its own lifecycle.
type Server struct {
	store    output.StorePort
	registry *ws.Registry
	ocr      output.OCRPort
	log      output.LoggerPort
}

type Config struct {
	ServiceName string
	JSONLogs    bool
}

func NewRouter(cfg Config, store output.StorePort, registry *ws.Registry, ocrClient output.OCRPort, wsHandler *ws.Handler, log output.LoggerPort) chi.Router {
	s := &Server{
		store:    store,
		registry: registry,
		ocr:      ocrClient,
		log:      log.WithField("component", "http"),
	}

	requestLogger := httplog.NewLogger(cfg.ServiceName, httplog.Options{
		JSON:    cfg.JSONLogs,
		Concise: true,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(requestLogger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"ts_ms":  time.Now().UnixMilli(),
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(s.auth)
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.createSession)
			r.Get("/", s.listSessions)
			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", s.getSession)
				r.Delete("/", s.deleteSession)
				r.Get("/history", s.sessionHistory)
			})
		})
		r.Post("/upload", s.handleUpload)
	})

	r.Get("/ws/sessions/{sessionID}", wsHandler.ServeHTTP)

	return r
}

type ctxKey int

const userIDKey ctxKey = iota

// auth resolves the bearer token to a user id for every /api route.
func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			respondError(w, http.StatusUnauthorized, "missing token")
			return
		}
		userID, err := s.store.ResolveToken(r.Context(), token)
		if err != nil {
			if errors.Is(err, output.ErrInvalidToken) {
				respondError(w, http.StatusUnauthorized, "invalid token")
			} else {
				s.log.Error("token lookup failed", "error", err)
				respondError(w, http.StatusInternalServerError, "auth unavailable")
			}
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

func userID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
