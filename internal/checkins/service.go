// Package checkins records attendance against admitted registrations. Each
// check-in is immutable; the per-registration quota comes from the event's
// allowed_check_ins and is enforced under the registration row lock.
package checkins

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/gatherly/backend/internal/models"
	"github.com/gatherly/backend/pkg/apperr"
)

// Store-level sentinels surfaced by AppendCheckIn.
var (
	// ErrQuotaReached means the registration already holds allowed_check_ins
	// check-ins.
	ErrQuotaReached = errors.New("check-in quota reached")
	// ErrNotAdmitted means the registration left APPROVED or CONFIRMED
	// before the append committed.
	ErrNotAdmitted = errors.New("registration not admitted")
)

// Store is the persistence surface the service needs. AppendCheckIn must
// re-check status and quota under the registration row lock so two concurrent
// scans at the last slot admit exactly one.
type Store interface {
	GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error)
	GetRegistration(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	AppendCheckIn(ctx context.Context, regID uuid.UUID, method models.CheckInMethod, note string, quota int) (*models.CheckIn, error)
	ListByRegistration(ctx context.Context, regID uuid.UUID) ([]models.CheckIn, error)
}

// Broadcaster pushes a recorded check-in to live listeners.
type Broadcaster interface {
	CheckInRecorded(eventID uuid.UUID, reg *models.Registration, ci *models.CheckIn)
}

// VirtualCard is the participant's event credential: the registration, its
// event context and the QR payload to present at the door.
type VirtualCard struct {
	Registration *models.Registration `json:"registration"`
	EventTitle   string               `json:"event_title"`
	EventStarts  time.Time            `json:"event_starts"`
	EventEnds    time.Time            `json:"event_ends"`
	QRData       string               `json:"qr_data"`
}

// Service implements attendance rules on top of a Store.
type Service struct {
	store     Store
	broadcast Broadcaster // optional
}

// NewService creates a check-ins service. broadcast may be nil.
func NewService(store Store, broadcast Broadcaster) *Service {
	return &Service{store: store, broadcast: broadcast}
}

// load resolves a registration and its event.
func (s *Service) load(ctx context.Context, regID uuid.UUID) (*models.Registration, *models.Event, error) {
	reg, err := s.store.GetRegistration(ctx, regID)
	if err != nil {
		return nil, nil, err
	}
	if reg == nil {
		return nil, nil, apperr.NotFound("registration not found")
	}
	event, err := s.store.GetEvent(ctx, reg.EventID)
	if err != nil {
		return nil, nil, err
	}
	if event == nil {
		return nil, nil, apperr.NotFound("event not found")
	}
	return reg, event, nil
}

// record runs the shared guards and appends one check-in.
func (s *Service) record(ctx context.Context, reg *models.Registration, event *models.Event, method models.CheckInMethod, note string) (*models.CheckIn, error) {
	if !reg.Status.Admitted() {
		return nil, apperr.InvalidState("registration is not approved for check-in")
	}
	if reg.CheckInCount >= event.AllowedCheckIns {
		return nil, apperr.CapacityExceeded("check-in limit reached for this registration")
	}

	ci, err := s.store.AppendCheckIn(ctx, reg.ID, method, note, event.AllowedCheckIns)
	switch {
	case errors.Is(err, ErrQuotaReached):
		return nil, apperr.CapacityExceeded("check-in limit reached for this registration")
	case errors.Is(err, ErrNotAdmitted):
		return nil, apperr.InvalidState("registration is not approved for check-in")
	case err != nil:
		return nil, err
	}

	reg.CheckInCount++
	if s.broadcast != nil {
		s.broadcast.CheckInRecorded(event.ID, reg, ci)
	}
	return ci, nil
}

// Record registers a manual check-in. Allowed for the registration's
// participant and for the event's organizer.
func (s *Service) Record(ctx context.Context, regID, callerID uuid.UUID, note string) (*models.CheckIn, error) {
	reg, event, err := s.load(ctx, regID)
	if err != nil {
		return nil, err
	}
	if callerID != reg.UserID && callerID != event.OrganizerID {
		return nil, apperr.Forbidden("only the participant or the event organizer can check in")
	}
	return s.record(ctx, reg, event, models.CheckInManual, note)
}

// RecordQR registers a check-in from a scanned QR code. The scanner must be
// the organizer of the event named in the payload, and the payload must agree
// with the registration it points at.
func (s *Service) RecordQR(ctx context.Context, qrData string, callerID uuid.UUID) (*models.CheckIn, error) {
	payload, err := DecodePayload(qrData)
	if err != nil {
		return nil, err
	}
	reg, event, err := s.load(ctx, payload.RegistrationID)
	if err != nil {
		return nil, err
	}
	if reg.EventID != payload.EventID || reg.UserID != payload.UserID {
		return nil, apperr.Validation("QR code does not match the registration")
	}
	if event.OrganizerID != callerID {
		return nil, apperr.Forbidden("only the event organizer can scan check-ins")
	}
	return s.record(ctx, reg, event, models.CheckInQR, "")
}

// Card builds the participant's virtual card for an admitted registration.
func (s *Service) Card(ctx context.Context, regID, callerID uuid.UUID) (*VirtualCard, error) {
	reg, event, err := s.load(ctx, regID)
	if err != nil {
		return nil, err
	}
	if callerID != reg.UserID {
		return nil, apperr.Forbidden("only the participant can view this card")
	}
	if !reg.Status.Admitted() {
		return nil, apperr.InvalidState("registration is not approved; no card available")
	}
	qrData, err := EncodePayload(QRPayload{
		RegistrationID: reg.ID,
		EventID:        event.ID,
		UserID:         reg.UserID,
		IssuedAt:       time.Now(),
	})
	if err != nil {
		return nil, err
	}
	return &VirtualCard{
		Registration: reg,
		EventTitle:   event.Title,
		EventStarts:  event.StartsAt,
		EventEnds:    event.EndsAt,
		QRData:       qrData,
	}, nil
}

// List returns a registration's check-in history for its participant or the
// event's organizer.
func (s *Service) List(ctx context.Context, regID, callerID uuid.UUID) ([]models.CheckIn, error) {
	reg, event, err := s.load(ctx, regID)
	if err != nil {
		return nil, err
	}
	if callerID != reg.UserID && callerID != event.OrganizerID {
		return nil, apperr.Forbidden("not allowed to view these check-ins")
	}
	return s.store.ListByRegistration(ctx, regID)
}
