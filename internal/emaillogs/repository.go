// Package emaillogs persists the delivery log for notification emails.
package emaillogs

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatherly/backend/internal/models"
)

// Repository handles email_logs persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an email logs repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert records a queued email attempt and returns its ID.
func (r *Repository) Insert(ctx context.Context, el *models.EmailLog) error {
	const q = `INSERT INTO email_logs (id, event_id, registration_id, email_type, recipient_email, subject, status)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q, el.EventID, el.RegistrationID, el.EmailType,
		el.RecipientEmail, el.Subject, el.Status).Scan(&el.ID, &el.CreatedAt)
}

// MarkSent stamps a log entry as delivered.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE email_logs SET status = 'sent', sent_at = NOW()
		WHERE id = $1`, id)
	return err
}

// MarkFailed records a delivery failure.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx, `UPDATE email_logs SET status = 'failed', error_message = $2
		WHERE id = $1`, id, reason)
	return err
}

// ListByEvent returns an event's email logs, newest first.
func (r *Repository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.EmailLog, error) {
	const q = `SELECT id, event_id, registration_id, email_type, recipient_email,
		COALESCE(subject, ''), status, sent_at, COALESCE(error_message, ''), created_at
		FROM email_logs WHERE event_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.EmailLog
	for rows.Next() {
		var el models.EmailLog
		if err := rows.Scan(&el.ID, &el.EventID, &el.RegistrationID, &el.EmailType,
			&el.RecipientEmail, &el.Subject, &el.Status, &el.SentAt,
			&el.ErrorMessage, &el.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, el)
	}
	return list, rows.Err()
}

// GetEventOrganizer returns the organizer of an event, or uuid.Nil when the
// event does not exist.
func (r *Repository) GetEventOrganizer(ctx context.Context, eventID uuid.UUID) (uuid.UUID, error) {
	var organizerID uuid.UUID
	err := r.pool.QueryRow(ctx, `SELECT organizer_id FROM events WHERE id = $1`, eventID).
		Scan(&organizerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, nil
	}
	return organizerID, err
}
