// Package events owns event CRUD and the organizer-driven lifecycle status.
// Status changes are administrative input; nothing here infers them from the
// clock or from registrations.
package events

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gatherly/backend/internal/models"
	"github.com/gatherly/backend/pkg/apperr"
)

// Store is the persistence surface the service needs.
type Store interface {
	Insert(ctx context.Context, e *models.Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
	Update(ctx context.Context, e *models.Event) error
	List(ctx context.Context, f ListFilter) ([]models.Event, error)
	CountCapacityConsuming(ctx context.Context, eventID uuid.UUID) (int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ListFilter narrows event listings.
type ListFilter struct {
	OrganizerID *uuid.UUID
	Status      *models.EventStatus
	// PublicOnly hides DRAFT and ARCHIVED events from listings for callers
	// other than the owner.
	PublicOnly bool
}

// CreateParams carries validated input for a new event.
type CreateParams struct {
	Title               string
	Description         string
	ShortDescription    string
	LocationAddress     string
	LocationURL         string
	StartsAt            time.Time
	EndsAt              time.Time
	Kind                models.EventKind
	Price               float64
	PixKey              string
	PaymentInstructions string
	RequiresApproval    bool
	RegistrationOpens   *time.Time
	RegistrationCloses  *time.Time
	MaxRegistrations    *int
	AllowedCheckIns     int
	BannerURL           string
	WorkloadHours       *int
}

// UpdateParams carries partial updates; nil fields are left untouched.
type UpdateParams struct {
	Title               *string
	Description         *string
	ShortDescription    *string
	LocationAddress     *string
	LocationURL         *string
	StartsAt            *time.Time
	EndsAt              *time.Time
	Kind                *models.EventKind
	Price               *float64
	PixKey              *string
	PaymentInstructions *string
	RequiresApproval    *bool
	RegistrationOpens   *time.Time
	RegistrationCloses  *time.Time
	MaxRegistrations    *int
	AllowedCheckIns     *int
	BannerURL           *string
	WorkloadHours       *int
}

// Service implements event business rules on top of a Store.
type Service struct {
	store Store
}

// NewService creates an events service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Create validates and persists a new event in DRAFT status.
func (s *Service) Create(ctx context.Context, organizerID uuid.UUID, p CreateParams) (*models.Event, error) {
	p.Title = strings.TrimSpace(p.Title)
	if p.Title == "" || strings.TrimSpace(p.Description) == "" {
		return nil, apperr.Validation("title and description are required")
	}
	if !p.EndsAt.After(p.StartsAt) {
		return nil, apperr.Validation("event must end after it starts")
	}
	if p.Kind == "" {
		p.Kind = models.EventFree
	}
	if p.Kind != models.EventFree && p.Kind != models.EventPaid {
		return nil, apperr.Validation("kind must be FREE or PAID")
	}
	if p.Kind == models.EventPaid && p.Price <= 0 {
		return nil, apperr.Validation("paid event requires a price greater than zero")
	}
	if p.MaxRegistrations != nil && *p.MaxRegistrations <= 0 {
		return nil, apperr.Validation("max_registrations must be positive when set")
	}
	if p.AllowedCheckIns == 0 {
		p.AllowedCheckIns = 1
	}
	if p.AllowedCheckIns < 1 {
		return nil, apperr.Validation("allowed_check_ins must be at least 1")
	}
	if p.RegistrationOpens != nil && p.RegistrationCloses != nil &&
		!p.RegistrationCloses.After(*p.RegistrationOpens) {
		return nil, apperr.Validation("registration window must close after it opens")
	}

	e := &models.Event{
		OrganizerID:         organizerID,
		Title:               p.Title,
		Description:         p.Description,
		ShortDescription:    p.ShortDescription,
		LocationAddress:     p.LocationAddress,
		LocationURL:         p.LocationURL,
		StartsAt:            p.StartsAt,
		EndsAt:              p.EndsAt,
		Kind:                p.Kind,
		Price:               p.Price,
		PixKey:              p.PixKey,
		PaymentInstructions: p.PaymentInstructions,
		RequiresApproval:    p.RequiresApproval,
		RegistrationOpens:   p.RegistrationOpens,
		RegistrationCloses:  p.RegistrationCloses,
		MaxRegistrations:    p.MaxRegistrations,
		AllowedCheckIns:     p.AllowedCheckIns,
		Status:              models.EventDraft,
		BannerURL:           p.BannerURL,
		WorkloadHours:       p.WorkloadHours,
	}
	if err := s.store.Insert(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Get returns an event by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	e, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, apperr.NotFound("event not found")
	}
	return e, nil
}

// List returns events matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]models.Event, error) {
	return s.store.List(ctx, f)
}

// Update applies partial changes to an event owned by the caller.
func (s *Service) Update(ctx context.Context, id, callerID uuid.UUID, p UpdateParams) (*models.Event, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.OrganizerID != callerID {
		return nil, apperr.Forbidden("only the event organizer can update it")
	}

	if p.Title != nil {
		e.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.ShortDescription != nil {
		e.ShortDescription = *p.ShortDescription
	}
	if p.LocationAddress != nil {
		e.LocationAddress = *p.LocationAddress
	}
	if p.LocationURL != nil {
		e.LocationURL = *p.LocationURL
	}
	if p.StartsAt != nil {
		e.StartsAt = *p.StartsAt
	}
	if p.EndsAt != nil {
		e.EndsAt = *p.EndsAt
	}
	if p.Kind != nil {
		e.Kind = *p.Kind
	}
	if p.Price != nil {
		e.Price = *p.Price
	}
	if p.PixKey != nil {
		e.PixKey = *p.PixKey
	}
	if p.PaymentInstructions != nil {
		e.PaymentInstructions = *p.PaymentInstructions
	}
	if p.RequiresApproval != nil {
		e.RequiresApproval = *p.RequiresApproval
	}
	if p.RegistrationOpens != nil {
		e.RegistrationOpens = p.RegistrationOpens
	}
	if p.RegistrationCloses != nil {
		e.RegistrationCloses = p.RegistrationCloses
	}
	if p.MaxRegistrations != nil {
		e.MaxRegistrations = p.MaxRegistrations
	}
	if p.AllowedCheckIns != nil {
		e.AllowedCheckIns = *p.AllowedCheckIns
	}
	if p.BannerURL != nil {
		e.BannerURL = *p.BannerURL
	}
	if p.WorkloadHours != nil {
		e.WorkloadHours = p.WorkloadHours
	}

	if e.Title == "" {
		return nil, apperr.Validation("title cannot be empty")
	}
	if !e.EndsAt.After(e.StartsAt) {
		return nil, apperr.Validation("event must end after it starts")
	}
	if e.Kind == models.EventPaid && e.Price <= 0 {
		return nil, apperr.Validation("paid event requires a price greater than zero")
	}
	if e.MaxRegistrations != nil && *e.MaxRegistrations <= 0 {
		return nil, apperr.Validation("max_registrations must be positive when set")
	}
	if e.AllowedCheckIns < 1 {
		return nil, apperr.Validation("allowed_check_ins must be at least 1")
	}

	if err := s.store.Update(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// ChangeStatus moves an event to the given lifecycle status. Organizer only.
func (s *Service) ChangeStatus(ctx context.Context, id, callerID uuid.UUID, status models.EventStatus) (*models.Event, error) {
	if !models.ValidEventStatus(status) {
		return nil, apperr.Validation("unknown event status")
	}
	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.OrganizerID != callerID {
		return nil, apperr.Forbidden("only the event organizer can change its status")
	}
	if e.Status == status {
		return nil, apperr.InvalidState("event is already " + string(status))
	}
	e.Status = status
	if err := s.store.Update(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Delete removes an event that has no capacity-consuming registrations.
func (s *Service) Delete(ctx context.Context, id, callerID uuid.UUID) error {
	e, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if e.OrganizerID != callerID {
		return apperr.Forbidden("only the event organizer can delete it")
	}
	n, err := s.store.CountCapacityConsuming(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return apperr.InvalidState("event has active registrations and cannot be deleted")
	}
	return s.store.Delete(ctx, id)
}
