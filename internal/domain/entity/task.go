package entity

import "time"

type TaskStatus string

const (
	TaskStatusPending      TaskStatus = "pending"
	TaskStatusProcessing   TaskStatus = "processing"
	TaskStatusCompleted    TaskStatus = "completed"
	TaskStatusFailed       TaskStatus = "failed"
	TaskStatusOCRCompleted TaskStatus = "ocr_completed"
	TaskStatusOCRFailed    TaskStatus = "ocr_failed"
)

// TaskRecord is the append-only audit entity for one unit of orchestrator
// work: a user turn or an uploaded file. The orchestrator owns it while
// processing, hands it to the store, and never mutates it afterwards.
type TaskRecord struct {
	ID           string
	SessionID    string
	UserID       string
	TaskType     string
	Status       TaskStatus
	InputData    map[string]any
	AIAnalysis   map[string]any
	Response     string
	ErrorMessage string
	CreatedAt    time.Time
	CompletedAt  *time.Time
}
