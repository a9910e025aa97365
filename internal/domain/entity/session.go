package entity

import "time"

// Session is the persistence collaborator's record of one conversation.
// The orchestrator receives it already verified; it never issues tokens.
type Session struct {
	ID        string
	UserID    string
	Name      string
	TargetURL string
	Active    bool
	CreatedAt time.Time
}
