package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bpm-agent/internal/application/port/output"
	"bpm-agent/internal/domain/entity"
)

var _ output.StorePort = (*Store)(nil)

// Store persists sessions, tokens and task history in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS api_tokens (
			token TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			target_url TEXT NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS task_history (
			task_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			task_type TEXT NOT NULL,
			status TEXT NOT NULL,
			input_data JSONB,
			ai_analysis JSONB,
			response TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMPTZ
		);`,
		`CREATE INDEX IF NOT EXISTS idx_task_history_session ON task_history(session_id, created_at);`,
	}

	for _, q := range queries {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ResolveToken(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.pool.QueryRow(ctx, `
		SELECT user_id
		FROM api_tokens
		WHERE token=$1 AND active
	`, token).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", output.ErrInvalidToken
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *Store) CreateSession(ctx context.Context, sess *entity.Session) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (session_id, user_id, name, target_url, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, sess.ID, sess.UserID, sess.Name, sess.TargetURL, sess.Active, sess.CreatedAt)
	return err
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*entity.Session, error) {
	sess := &entity.Session{}
	err := s.pool.QueryRow(ctx, `
		SELECT session_id, user_id, name, target_url, active, created_at
		FROM sessions
		WHERE session_id=$1
	`, sessionID).Scan(&sess.ID, &sess.UserID, &sess.Name, &sess.TargetURL, &sess.Active, &sess.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, output.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Store) ListSessions(ctx context.Context, userID string) ([]*entity.Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT session_id, user_id, name, target_url, active, created_at
		FROM sessions
		WHERE user_id=$1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*entity.Session
	for rows.Next() {
		sess := &entity.Session{}
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.Name, &sess.TargetURL, &sess.Active, &sess.CreatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *Store) SetSessionTargetURL(ctx context.Context, sessionID, targetURL string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET target_url=$2 WHERE session_id=$1
	`, sessionID, targetURL)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return output.ErrSessionNotFound
	}
	return nil
}

func (s *Store) CloseSession(ctx context.Context, sessionID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET active=FALSE WHERE session_id=$1
	`, sessionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return output.ErrSessionNotFound
	}
	return nil
}

func (s *Store) CreateTask(ctx context.Context, rec *entity.TaskRecord) error {
	input, err := marshalJSONB(rec.InputData)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO task_history (task_id, session_id, user_id, task_type, status, input_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID, rec.SessionID, rec.UserID, rec.TaskType, rec.Status, input, rec.CreatedAt)
	return err
}

func (s *Store) FinishTask(ctx context.Context, rec *entity.TaskRecord) error {
	analysis, err := marshalJSONB(rec.AIAnalysis)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE task_history
		SET status=$2, ai_analysis=$3, response=$4, error_message=$5, completed_at=$6
		WHERE task_id=$1
	`, rec.ID, rec.Status, analysis, rec.Response, rec.ErrorMessage, rec.CompletedAt)
	return err
}

func (s *Store) ListTasks(ctx context.Context, sessionID string) ([]*entity.TaskRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT task_id, session_id, user_id, task_type, status, input_data, ai_analysis,
		       response, error_message, created_at, completed_at
		FROM task_history
		WHERE session_id=$1
		ORDER BY created_at
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*entity.TaskRecord
	for rows.Next() {
		rec := &entity.TaskRecord{}
		var input, analysis []byte
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.UserID, &rec.TaskType, &rec.Status,
			&input, &analysis, &rec.Response, &rec.ErrorMessage, &rec.CreatedAt, &rec.CompletedAt); err != nil {
			return nil, err
		}
		if len(input) > 0 {
			if err := json.Unmarshal(input, &rec.InputData); err != nil {
				return nil, fmt.Errorf("task %s input_data: %w", rec.ID, err)
			}
		}
		if len(analysis) > 0 {
			if err := json.Unmarshal(analysis, &rec.AIAnalysis); err != nil {
				return nil, fmt.Errorf("task %s ai_analysis: %w", rec.ID, err)
			}
		}
		tasks = append(tasks, rec)
	}
	return tasks, rows.Err()
}

func marshalJSONB(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal jsonb: %w", err)
	}
	return b, nil
}
