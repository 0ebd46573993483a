// Package notify turns lifecycle transitions into queued notification
// emails. Enqueueing is best effort: a Redis hiccup is logged and the
// transition that triggered it still succeeds.
package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/gatherly/backend/internal/models"
	"github.com/gatherly/backend/pkg/queue"
)

// Service builds and enqueues notification emails.
type Service struct {
	pool   *pgxpool.Pool
	queue  *queue.Queue
	logger *zap.Logger
}

// NewService creates a notify service.
func NewService(pool *pgxpool.Pool, q *queue.Queue, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{pool: pool, queue: q, logger: logger}
}

// recipient resolves the participant's address and the event title.
func (s *Service) recipient(ctx context.Context, eventID, userID uuid.UUID) (email, name, title string, err error) {
	err = s.pool.QueryRow(ctx, `SELECT u.email, u.full_name, e.title
		FROM users u, events e
		WHERE u.id = $1 AND e.id = $2`, userID, eventID).Scan(&email, &name, &title)
	return
}

func (s *Service) enqueue(ctx context.Context, emailType string, reg *models.Registration, subject, body string, to string) {
	err := s.queue.EnqueueEmail(ctx, queue.EmailPayload{
		EmailType:      emailType,
		EventID:        reg.EventID,
		RegistrationID: reg.ID,
		RecipientEmail: to,
		Subject:        subject,
		BodyHTML:       body,
	})
	if err != nil {
		s.logger.Warn("enqueue notification failed",
			zap.String("email_type", emailType),
			zap.String("registration_id", reg.ID.String()),
			zap.Error(err))
	}
}

// RegistrationApproved notifies the participant their spot is confirmed.
func (s *Service) RegistrationApproved(ctx context.Context, reg *models.Registration) {
	to, name, title, err := s.recipient(ctx, reg.EventID, reg.UserID)
	if err != nil {
		s.logger.Warn("resolve recipient failed", zap.Error(err))
		return
	}
	subject := fmt.Sprintf("Your registration for %s is approved", title)
	body := fmt.Sprintf("<p>Hi %s,</p><p>Your registration for <strong>%s</strong> has been approved. See you there!</p>", name, title)
	s.enqueue(ctx, queue.EmailRegistrationApproved, reg, subject, body, to)
}

// PaymentConfirmed notifies the participant their payment was recorded.
func (s *Service) PaymentConfirmed(ctx context.Context, reg *models.Registration) {
	to, name, title, err := s.recipient(ctx, reg.EventID, reg.UserID)
	if err != nil {
		s.logger.Warn("resolve recipient failed", zap.Error(err))
		return
	}
	subject := fmt.Sprintf("Payment confirmed for %s", title)
	body := fmt.Sprintf("<p>Hi %s,</p><p>Your payment for <strong>%s</strong> has been confirmed and your spot is secured.</p>", name, title)
	s.enqueue(ctx, queue.EmailPaymentConfirmed, reg, subject, body, to)
}

// CertificateIssued notifies the participant their certificate is ready.
func (s *Service) CertificateIssued(ctx context.Context, cert *models.Certificate) {
	var to, name, title string
	err := s.pool.QueryRow(ctx, `SELECT u.email, u.full_name, e.title
		FROM users u, events e
		WHERE u.id = $1 AND e.id = $2`, cert.UserID, cert.EventID).Scan(&to, &name, &title)
	if err != nil {
		s.logger.Warn("resolve recipient failed", zap.Error(err))
		return
	}
	var regID uuid.UUID
	if err := s.pool.QueryRow(ctx, `SELECT id FROM registrations WHERE event_id = $1 AND user_id = $2`,
		cert.EventID, cert.UserID).Scan(&regID); err != nil {
		s.logger.Warn("resolve registration failed", zap.Error(err))
		return
	}
	subject := fmt.Sprintf("Your certificate for %s is ready", title)
	body := fmt.Sprintf("<p>Hi %s,</p><p>Your participation certificate for <strong>%s</strong> is ready. Verification code: <code>%s</code></p>", name, title, cert.VerificationCode)
	s.enqueue(ctx, queue.EmailCertificateIssued, &models.Registration{
		ID:      regID,
		EventID: cert.EventID,
		UserID:  cert.UserID,
	}, subject, body, to)
}
