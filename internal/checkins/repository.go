package checkins

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatherly/backend/internal/models"
)

// Repository handles check-in persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a check-ins repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetEvent returns an event by ID, or nil when absent.
func (r *Repository) GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	const q = `SELECT id, organizer_id, title, allowed_check_ins, status, starts_at, ends_at
		FROM events WHERE id = $1`
	var e models.Event
	err := r.pool.QueryRow(ctx, q, id).Scan(&e.ID, &e.OrganizerID, &e.Title,
		&e.AllowedCheckIns, &e.Status, &e.StartsAt, &e.EndsAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetRegistration returns a registration by ID, or nil when absent.
func (r *Repository) GetRegistration(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	const q = `SELECT id, event_id, user_id, status, registered_at, payment_confirmed_at,
		check_in_count, certificate_issued, created_at, updated_at
		FROM registrations WHERE id = $1`
	var reg models.Registration
	err := r.pool.QueryRow(ctx, q, id).Scan(&reg.ID, &reg.EventID, &reg.UserID, &reg.Status,
		&reg.RegisteredAt, &reg.PaymentConfirmed, &reg.CheckInCount, &reg.CertificateIssued,
		&reg.CreatedAt, &reg.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// AppendCheckIn inserts one check-in and bumps the registration's cached
// counter in the same transaction. The registration row lock serializes
// concurrent appends; status and quota are re-read under it.
func (r *Repository) AppendCheckIn(ctx context.Context, regID uuid.UUID, method models.CheckInMethod, note string, quota int) (*models.CheckIn, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var status models.RegistrationStatus
	var count int
	err = tx.QueryRow(ctx, `SELECT status, check_in_count FROM registrations
		WHERE id = $1 FOR UPDATE`, regID).Scan(&status, &count)
	if err != nil {
		return nil, err
	}
	if !status.Admitted() {
		return nil, ErrNotAdmitted
	}
	if count >= quota {
		return nil, ErrQuotaReached
	}

	ci := &models.CheckIn{RegistrationID: regID, Method: method, Note: note}
	err = tx.QueryRow(ctx, `INSERT INTO check_ins (id, registration_id, method, note)
		VALUES (gen_random_uuid(), $1, $2, $3)
		RETURNING id, checked_in_at, created_at`, regID, method, note).
		Scan(&ci.ID, &ci.CheckedInAt, &ci.CreatedAt)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `UPDATE registrations
		SET check_in_count = check_in_count + 1, updated_at = NOW()
		WHERE id = $1`, regID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ci, nil
}

// ListByRegistration returns a registration's check-ins, oldest first.
func (r *Repository) ListByRegistration(ctx context.Context, regID uuid.UUID) ([]models.CheckIn, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, registration_id, method, note, checked_in_at, created_at
		FROM check_ins WHERE registration_id = $1 ORDER BY checked_in_at ASC`, regID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.CheckIn
	for rows.Next() {
		var ci models.CheckIn
		if err := rows.Scan(&ci.ID, &ci.RegistrationID, &ci.Method, &ci.Note,
			&ci.CheckedInAt, &ci.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, ci)
	}
	return list, rows.Err()
}
