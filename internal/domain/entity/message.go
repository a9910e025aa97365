package entity

import "time"

type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is one conversation turn kept in session history.
type Message struct {
	Role      MessageRole
	Content   string
	Timestamp time.Time
}
