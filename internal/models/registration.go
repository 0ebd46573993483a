package models

import (
	"time"

	"github.com/google/uuid"
)

// RegistrationStatus is the participation state machine for one (event, user)
// pair. Legal transitions are enforced by the registrations service; statuses
// APPROVED and CONFIRMED consume capacity slots.
type RegistrationStatus string

const (
	RegistrationPending         RegistrationStatus = "PENDING"
	RegistrationAwaitingPayment RegistrationStatus = "AWAITING_PAYMENT"
	RegistrationApproved        RegistrationStatus = "APPROVED"
	RegistrationConfirmed       RegistrationStatus = "CONFIRMED"
	RegistrationRejected        RegistrationStatus = "REJECTED"
	RegistrationCancelled       RegistrationStatus = "CANCELLED"
)

// CapacityConsuming reports whether the status counts against the event's
// max_registrations limit.
func (s RegistrationStatus) CapacityConsuming() bool {
	return s == RegistrationApproved || s == RegistrationConfirmed
}

// Admitted reports whether the registration may check in, request a
// certificate or rate the event.
func (s RegistrationStatus) Admitted() bool {
	return s == RegistrationApproved || s == RegistrationConfirmed
}

// Registration records one participant's relationship to one event. At most
// one exists per (event, user); a cancelled registration stays on record and
// blocks re-registration.
type Registration struct {
	ID                uuid.UUID          `json:"id"`
	EventID           uuid.UUID          `json:"event_id"`
	UserID            uuid.UUID          `json:"user_id"`
	Status            RegistrationStatus `json:"status"`
	RegisteredAt      time.Time          `json:"registered_at"`
	PaymentConfirmed  *time.Time         `json:"payment_confirmed_at,omitempty"`
	CheckInCount      int                `json:"check_in_count"`
	CertificateIssued bool               `json:"certificate_issued"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// CheckInMethod is how a check-in was asserted.
type CheckInMethod string

const (
	CheckInManual CheckInMethod = "MANUAL"
	CheckInQR     CheckInMethod = "QR"
)

// CheckIn is an immutable attendance record tied to one registration. The
// registration's cached CheckInCount always equals the number of these rows.
type CheckIn struct {
	ID             uuid.UUID     `json:"id"`
	RegistrationID uuid.UUID     `json:"registration_id"`
	Method         CheckInMethod `json:"method"`
	Note           string        `json:"note,omitempty"`
	CheckedInAt    time.Time     `json:"checked_in_at"`
	CreatedAt      time.Time     `json:"created_at"`
}
