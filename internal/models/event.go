package models

import (
	"time"

	"github.com/google/uuid"
)

// EventStatus is the administrative lifecycle of an event. Transitions between
// statuses are organizer actions, never inferred by the system.
type EventStatus string

const (
	EventDraft               EventStatus = "DRAFT"
	EventPublished           EventStatus = "PUBLISHED"
	EventRegistrationsOpen   EventStatus = "REGISTRATIONS_OPEN"
	EventRegistrationsClosed EventStatus = "REGISTRATIONS_CLOSED"
	EventInProgress          EventStatus = "IN_PROGRESS"
	EventFinished            EventStatus = "FINISHED"
	EventArchived            EventStatus = "ARCHIVED"
)

// ValidEventStatus reports whether s is one of the known lifecycle statuses.
func ValidEventStatus(s EventStatus) bool {
	switch s {
	case EventDraft, EventPublished, EventRegistrationsOpen, EventRegistrationsClosed,
		EventInProgress, EventFinished, EventArchived:
		return true
	}
	return false
}

// EventKind distinguishes free events from paid ones.
type EventKind string

const (
	EventFree EventKind = "FREE"
	EventPaid EventKind = "PAID"
)

// Event is an organizer-owned container for registrations, check-ins,
// certificates and ratings.
type Event struct {
	ID                  uuid.UUID   `json:"id"`
	OrganizerID         uuid.UUID   `json:"organizer_id"`
	Title               string      `json:"title"`
	Description         string      `json:"description"`
	ShortDescription    string      `json:"short_description,omitempty"`
	LocationAddress     string      `json:"location_address,omitempty"`
	LocationURL         string      `json:"location_url,omitempty"`
	StartsAt            time.Time   `json:"starts_at"`
	EndsAt              time.Time   `json:"ends_at"`
	Kind                EventKind   `json:"kind"`
	Price               float64     `json:"price"`
	PixKey              string      `json:"pix_key,omitempty"`
	PaymentInstructions string      `json:"payment_instructions,omitempty"`
	RequiresApproval    bool        `json:"requires_approval"`
	RegistrationOpens   *time.Time  `json:"registration_opens,omitempty"`
	RegistrationCloses  *time.Time  `json:"registration_closes,omitempty"`
	MaxRegistrations    *int        `json:"max_registrations,omitempty"` // nil = unlimited
	AllowedCheckIns     int         `json:"allowed_check_ins"`           // >= 1
	Status              EventStatus `json:"status"`
	BannerURL           string      `json:"banner_url,omitempty"`
	WorkloadHours       *int        `json:"workload_hours,omitempty"`
	AverageRating       float64     `json:"average_rating"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// AcceptsRegistrations reports whether new registrations may be created given
// the event's lifecycle status alone (the registration window is checked
// separately against the clock).
func (e *Event) AcceptsRegistrations() bool {
	return e.Status == EventPublished || e.Status == EventRegistrationsOpen
}

// RegistrationWindowOpen reports whether now falls inside the optional
// registration window. A nil bound is unbounded on that side.
func (e *Event) RegistrationWindowOpen(now time.Time) bool {
	if e.RegistrationOpens != nil && now.Before(*e.RegistrationOpens) {
		return false
	}
	if e.RegistrationCloses != nil && now.After(*e.RegistrationCloses) {
		return false
	}
	return true
}
