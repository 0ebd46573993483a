// Package registrations owns the participation state machine for one
// (event, participant) pair: creation with a computed initial status,
// organizer decisions, payment confirmation and cancellation. All status
// writes are conditional on the expected prior status so that exactly one
// of any two concurrent transitions wins.
package registrations

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/gatherly/backend/internal/models"
	"github.com/gatherly/backend/pkg/apperr"
)

// Store-level sentinels surfaced by atomic operations.
var (
	// ErrCapacityFull means admitting one more registration would exceed
	// the event's max_registrations.
	ErrCapacityFull = errors.New("event capacity exhausted")
	// ErrDuplicate means a registration already exists for the
	// (event, user) pair.
	ErrDuplicate = errors.New("registration already exists")
)

// Store is the persistence surface the service needs. Admitting operations
// (InsertAdmitted, ApproveWithinCapacity) must evaluate the capacity count
// and the write in one transaction, serialized per event.
type Store interface {
	GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	GetByEventAndUser(ctx context.Context, eventID, userID uuid.UUID) (*models.Registration, error)
	// Insert persists a registration in a non-capacity-consuming status.
	Insert(ctx context.Context, reg *models.Registration) error
	// InsertAdmitted persists a registration in APPROVED status, admitting
	// it against the limit (nil = unlimited) atomically.
	InsertAdmitted(ctx context.Context, reg *models.Registration, limit *int) error
	// ApproveWithinCapacity moves PENDING to APPROVED if capacity remains.
	// Returns false when the registration was not PENDING anymore.
	ApproveWithinCapacity(ctx context.Context, regID, eventID uuid.UUID, limit *int) (bool, error)
	// Transition moves a registration from one status to another, optionally
	// stamping payment confirmation. Returns false when the registration was
	// not in the expected status.
	Transition(ctx context.Context, regID uuid.UUID, from, to models.RegistrationStatus, stampPayment bool) (bool, error)
	// CancelFromAny moves any non-CANCELLED registration to CANCELLED.
	// Returns false when it was already cancelled.
	CancelFromAny(ctx context.Context, regID uuid.UUID) (bool, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.Registration, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Registration, error)
}

// Notifier fires best-effort notifications after successful transitions.
type Notifier interface {
	RegistrationApproved(ctx context.Context, reg *models.Registration)
	PaymentConfirmed(ctx context.Context, reg *models.Registration)
}

// Service implements the registration state machine on top of a Store.
type Service struct {
	store    Store
	notifier Notifier // optional
}

// NewService creates a registrations service. notifier may be nil.
func NewService(store Store, notifier Notifier) *Service {
	return &Service{store: store, notifier: notifier}
}

// initialStatus computes the status a new registration starts in.
func initialStatus(e *models.Event) models.RegistrationStatus {
	if e.RequiresApproval {
		return models.RegistrationPending
	}
	if e.Kind == models.EventPaid {
		return models.RegistrationAwaitingPayment
	}
	return models.RegistrationApproved
}

// Create registers a participant for an event. The initial status depends on
// the event's approval policy and kind; the auto-approved path is admitted
// against capacity inside the insert transaction.
func (s *Service) Create(ctx context.Context, eventID, userID uuid.UUID) (*models.Registration, error) {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, apperr.NotFound("event not found")
	}
	if !event.AcceptsRegistrations() {
		return nil, apperr.InvalidState("event is not accepting registrations")
	}

	existing, err := s.store.GetByEventAndUser(ctx, eventID, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Status == models.RegistrationCancelled {
			return nil, apperr.InvalidState("your registration for this event was cancelled")
		}
		return nil, apperr.AlreadyExists("you are already registered for this event")
	}

	now := time.Now()
	if event.RegistrationOpens != nil && now.Before(*event.RegistrationOpens) {
		return nil, apperr.InvalidState("registration has not opened yet")
	}
	if event.RegistrationCloses != nil && now.After(*event.RegistrationCloses) {
		return nil, apperr.InvalidState("registration period has ended")
	}

	reg := &models.Registration{
		EventID:      eventID,
		UserID:       userID,
		Status:       initialStatus(event),
		RegisteredAt: now,
	}

	if reg.Status == models.RegistrationApproved {
		err = s.store.InsertAdmitted(ctx, reg, event.MaxRegistrations)
	} else {
		err = s.store.Insert(ctx, reg)
	}
	switch {
	case errors.Is(err, ErrCapacityFull):
		return nil, apperr.CapacityExceeded("event has reached its registration limit")
	case errors.Is(err, ErrDuplicate):
		// Lost a race with a concurrent registration by the same user.
		return nil, apperr.AlreadyExists("you are already registered for this event")
	case err != nil:
		return nil, err
	}
	return reg, nil
}

// load fetches a registration and its event, failing with NotFound when
// either reference does not resolve.
func (s *Service) load(ctx context.Context, regID uuid.UUID) (*models.Registration, *models.Event, error) {
	reg, err := s.store.GetByID(ctx, regID)
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

// Approve moves a PENDING registration to APPROVED, re-checking capacity at
// approval time. Pending registrations do not reserve a slot: first approved,
// first served.
func (s *Service) Approve(ctx context.Context, regID, callerID uuid.UUID) (*models.Registration, error) {
	reg, event, err := s.load(ctx, regID)
	if err != nil {
		return nil, err
	}
	if event.OrganizerID != callerID {
		return nil, apperr.Forbidden("only the event organizer can approve registrations")
	}
	if err := requirePending(reg.Status, "approved"); err != nil {
		return nil, err
	}

	ok, err := s.store.ApproveWithinCapacity(ctx, regID, event.ID, event.MaxRegistrations)
	if errors.Is(err, ErrCapacityFull) {
		return nil, apperr.CapacityExceeded("event has reached its registration limit")
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		// A concurrent transition won; report the state it left behind.
		return nil, s.staleStateError(ctx, regID, "approved")
	}

	reg.Status = models.RegistrationApproved
	if s.notifier != nil {
		s.notifier.RegistrationApproved(ctx, reg)
	}
	return reg, nil
}

// Reject moves a PENDING registration to REJECTED. Approved or confirmed
// registrations cannot be rejected; they must be cancelled.
func (s *Service) Reject(ctx context.Context, regID, callerID uuid.UUID) (*models.Registration, error) {
	reg, event, err := s.load(ctx, regID)
	if err != nil {
		return nil, err
	}
	if event.OrganizerID != callerID {
		return nil, apperr.Forbidden("only the event organizer can reject registrations")
	}
	switch reg.Status {
	case models.RegistrationRejected:
		return nil, apperr.InvalidState("registration is already rejected")
	case models.RegistrationApproved, models.RegistrationConfirmed:
		return nil, apperr.InvalidState("cannot reject an approved registration; cancel it instead")
	case models.RegistrationCancelled:
		return nil, apperr.InvalidState("registration is cancelled")
	case models.RegistrationAwaitingPayment:
		return nil, apperr.InvalidState("registration is not pending approval")
	}

	ok, err := s.store.Transition(ctx, regID, models.RegistrationPending, models.RegistrationRejected, false)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.staleStateError(ctx, regID, "rejected")
	}
	reg.Status = models.RegistrationRejected
	return reg, nil
}

// ConfirmPayment moves AWAITING_PAYMENT to CONFIRMED and stamps the payment
// timestamp. Payment itself happens outside the system; this records the
// organizer's assertion that it occurred.
func (s *Service) ConfirmPayment(ctx context.Context, regID, callerID uuid.UUID) (*models.Registration, error) {
	reg, event, err := s.load(ctx, regID)
	if err != nil {
		return nil, err
	}
	if event.OrganizerID != callerID {
		return nil, apperr.Forbidden("only the event organizer can confirm payments")
	}
	switch reg.Status {
	case models.RegistrationConfirmed:
		return nil, apperr.InvalidState("payment is already confirmed")
	case models.RegistrationAwaitingPayment:
		// fall through to the transition
	default:
		return nil, apperr.InvalidState("registration is not awaiting payment")
	}

	ok, err := s.store.Transition(ctx, regID, models.RegistrationAwaitingPayment, models.RegistrationConfirmed, true)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.staleStateError(ctx, regID, "confirmed")
	}

	updated, err := s.store.GetByID(ctx, regID)
	if err != nil || updated == nil {
		// The transition committed; fall back to the in-memory view.
		reg.Status = models.RegistrationConfirmed
		updated = reg
	}
	if s.notifier != nil {
		s.notifier.PaymentConfirmed(ctx, updated)
	}
	return updated, nil
}

// Cancel moves any non-CANCELLED registration to CANCELLED. Allowed for the
// registration's participant and for the event's organizer. Cancellation is
// terminal: the pair can never re-register.
func (s *Service) Cancel(ctx context.Context, regID, callerID uuid.UUID) (*models.Registration, error) {
	reg, event, err := s.load(ctx, regID)
	if err != nil {
		return nil, err
	}
	if callerID != reg.UserID && callerID != event.OrganizerID {
		return nil, apperr.Forbidden("only the participant or the event organizer can cancel this registration")
	}
	if reg.Status == models.RegistrationCancelled {
		return nil, apperr.InvalidState("registration is already cancelled")
	}

	ok, err := s.store.CancelFromAny(ctx, regID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.InvalidState("registration is already cancelled")
	}
	reg.Status = models.RegistrationCancelled
	return reg, nil
}

// Get returns a registration visible to its participant or the event's
// organizer.
func (s *Service) Get(ctx context.Context, regID, callerID uuid.UUID) (*models.Registration, error) {
	reg, event, err := s.load(ctx, regID)
	if err != nil {
		return nil, err
	}
	if callerID != reg.UserID && callerID != event.OrganizerID {
		return nil, apperr.Forbidden("not allowed to view this registration")
	}
	return reg, nil
}

// ListByEvent returns an event's registrations for its organizer.
func (s *Service) ListByEvent(ctx context.Context, eventID, callerID uuid.UUID) ([]models.Registration, error) {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, apperr.NotFound("event not found")
	}
	if event.OrganizerID != callerID {
		return nil, apperr.Forbidden("only the event organizer can list registrations")
	}
	return s.store.ListByEvent(ctx, eventID)
}

// ListByUser returns the caller's own registrations.
func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Registration, error) {
	return s.store.ListByUser(ctx, userID)
}

// requirePending rejects transitions whose source must be PENDING, naming
// the actual state. verb is the attempted transition in past tense.
func requirePending(status models.RegistrationStatus, verb string) error {
	switch status {
	case models.RegistrationPending:
		return nil
	case models.RegistrationApproved, models.RegistrationConfirmed:
		return apperr.InvalidState("registration is already " + verb)
	case models.RegistrationRejected:
		return apperr.InvalidState("registration is rejected")
	case models.RegistrationCancelled:
		return apperr.InvalidState("registration is cancelled")
	default:
		return apperr.InvalidState("registration is not pending approval")
	}
}

// staleStateError re-reads a registration after a lost conditional update
// and reports its actual status.
func (s *Service) staleStateError(ctx context.Context, regID uuid.UUID, verb string) error {
	current, err := s.store.GetByID(ctx, regID)
	if err != nil || current == nil {
		return apperr.InvalidState("registration changed state concurrently")
	}
	if current.Status.Admitted() {
		return apperr.InvalidState("registration is already " + verb)
	}
	return apperr.InvalidState("registration is " + string(current.Status))
}
