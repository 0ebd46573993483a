// Package certificates issues participation certificates. Issuance is
// participant-initiated, gated on an admitted registration with at least one
// check-in, and idempotent per (event, user).
package certificates

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gatherly/backend/internal/models"
	"github.com/gatherly/backend/pkg/apperr"
	"github.com/gatherly/backend/pkg/storage"
)

// ErrDuplicate means a certificate already exists for the (event, user) pair.
var ErrDuplicate = errors.New("certificate already exists")

// Store is the persistence surface the service needs. Create must insert the
// certificate and flip the registration's certificate_issued flag in one
// transaction, surfacing the uniqueness constraint as ErrDuplicate.
type Store interface {
	GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetRegistration(ctx context.Context, eventID, userID uuid.UUID) (*models.Registration, error)
	GetByEventAndUser(ctx context.Context, eventID, userID uuid.UUID) (*models.Certificate, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Certificate, error)
	GetByCode(ctx context.Context, code string) (*models.Certificate, error)
	Create(ctx context.Context, cert *models.Certificate) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Certificate, error)
}

// Uploader stores rendered artifacts and signs download links.
type Uploader interface {
	UploadCertificate(ctx context.Context, key string, pdf []byte) (string, error)
	CertificateDownloadURL(ctx context.Context, key string) (string, error)
}

// Notifier fires a best-effort notification after issuance.
type Notifier interface {
	CertificateIssued(ctx context.Context, cert *models.Certificate)
}

// Validation is the public view returned for a verification code lookup.
type Validation struct {
	Certificate     *models.Certificate `json:"certificate"`
	EventTitle      string              `json:"event_title"`
	ParticipantName string              `json:"participant_name"`
}

// Service implements certificate rules on top of a Store.
type Service struct {
	store    Store
	renderer Renderer
	uploader Uploader
	notifier Notifier // optional
}

// NewService creates a certificates service. notifier may be nil.
func NewService(store Store, renderer Renderer, uploader Uploader, notifier Notifier) *Service {
	return &Service{store: store, renderer: renderer, uploader: uploader, notifier: notifier}
}

// newVerificationCode builds a globally unique public code.
func newVerificationCode() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("CERT-%d-%s", time.Now().Unix(), hex.EncodeToString(buf)), nil
}

// Issue returns the caller's certificate for an event, creating it on first
// request. Requires an admitted registration with at least one check-in.
// Racing requests converge on one certificate.
func (s *Service) Issue(ctx context.Context, eventID, callerID uuid.UUID) (*models.Certificate, error) {
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
		return nil, apperr.InvalidState("registration is not approved; no certificate available")
	}
	if reg.CheckInCount < 1 {
		return nil, apperr.InvalidState("at least one check-in is required for a certificate")
	}

	if existing, err := s.store.GetByEventAndUser(ctx, eventID, callerID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	user, err := s.store.GetUser(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.NotFound("user not found")
	}

	code, err := newVerificationCode()
	if err != nil {
		return nil, err
	}
	cert := &models.Certificate{
		ID:               uuid.New(),
		EventID:          eventID,
		UserID:           callerID,
		VerificationCode: code,
		IssuedAt:         time.Now(),
	}

	pdf, err := s.renderer.Render(RenderData{
		ParticipantName:  user.FullName,
		EventTitle:       event.Title,
		EventStarts:      event.StartsAt,
		EventEnds:        event.EndsAt,
		WorkloadHours:    event.WorkloadHours,
		VerificationCode: code,
		IssuedAt:         cert.IssuedAt,
	})
	if err != nil {
		return nil, err
	}

	// Upload before the insert so the stored row never points at a missing
	// artifact. A lost race leaves an orphan object behind, which is harmless.
	key := storage.CertificateKey(eventID.String(), cert.ID.String())
	if cert.PDFKey, err = s.uploader.UploadCertificate(ctx, key, pdf); err != nil {
		return nil, err
	}

	err = s.store.Create(ctx, cert)
	if errors.Is(err, ErrDuplicate) {
		// A concurrent request won; hand back its certificate.
		return s.store.GetByEventAndUser(ctx, eventID, callerID)
	}
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.CertificateIssued(ctx, cert)
	}
	return cert, nil
}

// DownloadURL returns a short-lived link to the caller's certificate PDF.
func (s *Service) DownloadURL(ctx context.Context, certID, callerID uuid.UUID) (string, error) {
	cert, err := s.store.GetByID(ctx, certID)
	if err != nil {
		return "", err
	}
	if cert == nil {
		return "", apperr.NotFound("certificate not found")
	}
	if cert.UserID != callerID {
		return "", apperr.Forbidden("only the certificate holder can download it")
	}
	return s.uploader.CertificateDownloadURL(ctx, cert.PDFKey)
}

// Validate resolves a public verification code.
func (s *Service) Validate(ctx context.Context, code string) (*Validation, error) {
	cert, err := s.store.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if cert == nil {
		return nil, apperr.NotFound("certificate not found")
	}
	event, err := s.store.GetEvent(ctx, cert.EventID)
	if err != nil {
		return nil, err
	}
	user, err := s.store.GetUser(ctx, cert.UserID)
	if err != nil {
		return nil, err
	}
	v := &Validation{Certificate: cert}
	if event != nil {
		v.EventTitle = event.Title
	}
	if user != nil {
		v.ParticipantName = user.FullName
	}
	return v, nil
}

// ListMine returns the caller's certificates.
func (s *Service) ListMine(ctx context.Context, userID uuid.UUID) ([]models.Certificate, error) {
	return s.store.ListByUser(ctx, userID)
}
