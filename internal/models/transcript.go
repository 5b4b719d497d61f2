// Package models defines the data structures for dashboard events.
package models

import "time"

// Roles of a transcript update.
const (
	RoleCaller     = "caller"
	RoleDispatcher = "dispatcher"
)

// TimestampLayout is the wall-clock format shown on the dashboard.
const TimestampLayout = "15:04:05"

// TranscriptUpdate is pushed to the dashboard for every caller or
// dispatcher utterance.
type TranscriptUpdate struct {
	Role      string `json:"role"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	SessionID string `json:"sessionId,omitempty"`
}

// NewTranscriptUpdate stamps an update with the local wall-clock time.
func NewTranscriptUpdate(sessionID, role, message string, at time.Time) TranscriptUpdate {
	return TranscriptUpdate{
		Role:      role,
		Message:   message,
		Timestamp: at.Format(TimestampLayout),
		SessionID: sessionID,
	}
}
