package models

import (
	"time"

	"github.com/google/uuid"
)

// Participation actions carried by notification jobs.
const (
	ActionJoined = "joined"
	ActionLeft   = "left"
)

// NotificationLog delivery status.
const (
	NotificationStatusSent    = "sent"
	NotificationStatusFailed  = "failed"
	NotificationStatusSkipped = "skipped"
)

// NotificationLog records an organiser notification attempt.
type NotificationLog struct {
	ID             uuid.UUID  `json:"id"`
	EventID        int64      `json:"event_id"`
	HelperID       string     `json:"helper_id"`
	Action         string     `json:"action"`
	RecipientEmail string     `json:"recipient_email,omitempty"`
	Subject        string     `json:"subject,omitempty"`
	Status         string     `json:"status"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
