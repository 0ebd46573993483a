package models

import (
	"time"

	"github.com/google/uuid"
)

// EmailStatus is the delivery state of a notification email.
type EmailStatus string

const (
	EmailQueued EmailStatus = "queued"
	EmailSent   EmailStatus = "sent"
	EmailFailed EmailStatus = "failed"
)

// EmailLog records one notification email attempt for audit and debugging.
type EmailLog struct {
	ID             uuid.UUID   `json:"id"`
	EventID        uuid.UUID   `json:"event_id"`
	RegistrationID uuid.UUID   `json:"registration_id"`
	EmailType      string      `json:"email_type"`
	RecipientEmail string      `json:"recipient_email"`
	Subject        string      `json:"subject,omitempty"`
	Status         EmailStatus `json:"status"`
	SentAt         *time.Time  `json:"sent_at,omitempty"`
	ErrorMessage   string      `json:"error_message,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}
