package output

import (
	"context"
	"errors"

	"bpm-agent/internal/domain/entity"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidToken    = errors.New("invalid token")
)

// StorePort is the persistence collaborator boundary. It serializes writes
// per row; the orchestrator holds no other cross-session state.
type StorePort interface {
	// ResolveToken maps a bearer token to a verified user id.
	ResolveToken(ctx context.Context, token string) (string, error)

	CreateSession(ctx context.Context, sess *entity.Session) error
	GetSession(ctx context.Context, sessionID string) (*entity.Session, error)
	ListSessions(ctx context.Context, userID string) ([]*entity.Session, error)
	SetSessionTargetURL(ctx context.Context, sessionID, targetURL string) error
	CloseSession(ctx context.Context, sessionID string) error

	// CreateTask persists a new task record in its initial status.
	CreateTask(ctx context.Context, rec *entity.TaskRecord) error
	// FinishTask writes the record's final status and payload. The record
	// is append-only from the orchestrator's point of view: it is handed
	// over here and never touched again.
	FinishTask(ctx context.Context, rec *entity.TaskRecord) error
	ListTasks(ctx context.Context, sessionID string) ([]*entity.TaskRecord, error)
}
