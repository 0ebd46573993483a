// Package ratings collects one 1-5 score per attending participant and keeps
// the event's cached average consistent with the stored scores.
package ratings

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/gatherly/backend/internal/models"
	"github.com/gatherly/backend/pkg/apperr"
)

// ErrDuplicate means the participant already rated the event.
var ErrDuplicate = errors.New("rating already exists")

// Store is the persistence surface the service needs. CreateAndRecompute must
// insert the rating and recompute the event's average in one transaction,
// under the event row lock.
type Store interface {
	GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error)
	GetRegistration(ctx context.Context, eventID, userID uuid.UUID) (*models.Registration, error)
	GetByEventAndUser(ctx context.Context, eventID, userID uuid.UUID) (*models.Rating, error)
	CreateAndRecompute(ctx context.Context, rating *models.Rating) (float64, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.Rating, error)
}

// Result pairs a stored rating with the event average it produced.
type Result struct {
	Rating       *models.Rating `json:"rating"`
	EventAverage float64        `json:"event_average"`
}

// Service implements rating rules on top of a Store.
type Service struct {
	store Store
}

// NewService creates a ratings service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Rate records the caller's score for an event they attended. Requires an
// admitted registration with at least one check-in; one rating per pair,
// immutable once stored.
func (s *Service) Rate(ctx context.Context, eventID, callerID uuid.UUID, score int, comment string) (*Result, error) {
	if score < 1 || score > 5 {
		return nil, apperr.Validation("score must be between 1 and 5")
	}
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, apperr.NotFound("event not found")
	}
	reg, err := s.store.GetRegistration(ctx, eventID, callerID)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, apperr.NotFound("you are not registered for this event")
	}
	if !reg.Status.Admitted() {
		return nil, apperr.InvalidState("registration is not approved; rating not allowed")
	}
	if reg.CheckInCount < 1 {
		return nil, apperr.InvalidState("at least one check-in is required to rate the event")
	}
	if existing, err := s.store.GetByEventAndUser(ctx, eventID, callerID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, apperr.AlreadyExists("you have already rated this event")
	}

	rating := &models.Rating{
		EventID: eventID,
		UserID:  callerID,
		Score:   score,
		Comment: strings.TrimSpace(comment),
	}
	avg, err := s.store.CreateAndRecompute(ctx, rating)
	if errors.Is(err, ErrDuplicate) {
		return nil, apperr.AlreadyExists("you have already rated this event")
	}
	if err != nil {
		return nil, err
	}
	return &Result{Rating: rating, EventAverage: avg}, nil
}

// ListByEvent returns an event's ratings.
func (s *Service) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.Rating, error) {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, apperr.NotFound("event not found")
	}
	return s.store.ListByEvent(ctx, eventID)
}
