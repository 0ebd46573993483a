package models

import (
	"time"

	"github.com/google/uuid"
)

// Certificate attests participation. At most one exists per (event, user);
// re-requesting returns the existing record. The verification code is a
// public, globally unique token usable by third parties to validate the
// certificate without knowing internal identifiers.
type Certificate struct {
	ID               uuid.UUID `json:"id"`
	EventID          uuid.UUID `json:"event_id"`
	UserID           uuid.UUID `json:"user_id"`
	VerificationCode string    `json:"verification_code"`
	PDFKey           string    `json:"pdf_key,omitempty"` // S3 object key of the rendered artifact
	IssuedAt         time.Time `json:"issued_at"`
	CreatedAt        time.Time `json:"created_at"`
}

// Rating is one participant's 1-5 score for an event. At most one per
// (event, user); inserting one recomputes the event's average.
type Rating struct {
	ID        uuid.UUID `json:"id"`
	EventID   uuid.UUID `json:"event_id"`
	UserID    uuid.UUID `json:"user_id"`
	Score     int       `json:"score"`
	Comment   string    `json:"comment,omitempty"`
	RatedAt   time.Time `json:"rated_at"`
	CreatedAt time.Time `json:"created_at"`
}
