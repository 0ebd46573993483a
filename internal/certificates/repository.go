package certificates

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatherly/backend/internal/models"
)

const certColumns = `id, event_id, user_id, verification_code, pdf_key, issued_at, created_at`

// Repository handles certificate persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a certificates repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanCertificate(row pgx.Row) (*models.Certificate, error) {
	var cert models.Certificate
	err := row.Scan(&cert.ID, &cert.EventID, &cert.UserID, &cert.VerificationCode,
		&cert.PDFKey, &cert.IssuedAt, &cert.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

// GetEvent returns an event by ID, or nil when absent.
func (r *Repository) GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	const q = `SELECT id, organizer_id, title, starts_at, ends_at, workload_hours, status
		FROM events WHERE id = $1`
	var e models.Event
	err := r.pool.QueryRow(ctx, q, id).Scan(&e.ID, &e.OrganizerID, &e.Title,
		&e.StartsAt, &e.EndsAt, &e.WorkloadHours, &e.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetUser returns a user by ID, or nil when absent.
func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const q = `SELECT id, email, full_name, role FROM users WHERE id = $1`
	var u models.User
	err := r.pool.QueryRow(ctx, q, id).Scan(&u.ID, &u.Email, &u.FullName, &u.Role)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetRegistration returns the registration for an (event, user) pair, or nil.
func (r *Repository) GetRegistration(ctx context.Context, eventID, userID uuid.UUID) (*models.Registration, error) {
	const q = `SELECT id, event_id, user_id, status, check_in_count, certificate_issued
		FROM registrations WHERE event_id = $1 AND user_id = $2`
	var reg models.Registration
	err := r.pool.QueryRow(ctx, q, eventID, userID).Scan(&reg.ID, &reg.EventID,
		&reg.UserID, &reg.Status, &reg.CheckInCount, &reg.CertificateIssued)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// GetByEventAndUser returns the certificate for an (event, user) pair, or nil.
func (r *Repository) GetByEventAndUser(ctx context.Context, eventID, userID uuid.UUID) (*models.Certificate, error) {
	cert, err := scanCertificate(r.pool.QueryRow(ctx,
		`SELECT `+certColumns+` FROM certificates WHERE event_id = $1 AND user_id = $2`,
		eventID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return cert, err
}

// GetByID returns a certificate by ID, or nil when absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Certificate, error) {
	cert, err := scanCertificate(r.pool.QueryRow(ctx,
		`SELECT `+certColumns+` FROM certificates WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return cert, err
}

// GetByCode returns a certificate by verification code, or nil when absent.
func (r *Repository) GetByCode(ctx context.Context, code string) (*models.Certificate, error) {
	cert, err := scanCertificate(r.pool.QueryRow(ctx,
		`SELECT `+certColumns+` FROM certificates WHERE verification_code = $1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return cert, err
}

// Create inserts the certificate and flips the registration's flag in one
// transaction. The (event_id, user_id) constraint surfaces as ErrDuplicate.
func (r *Repository) Create(ctx context.Context, cert *models.Certificate) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const q = `INSERT INTO certificates (id, event_id, user_id, verification_code, pdf_key, issued_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`
	err = tx.QueryRow(ctx, q, cert.ID, cert.EventID, cert.UserID,
		cert.VerificationCode, cert.PDFKey, cert.IssuedAt).Scan(&cert.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		return err
	}

	if _, err := tx.Exec(ctx, `UPDATE registrations
		SET certificate_issued = TRUE, updated_at = NOW()
		WHERE event_id = $1 AND user_id = $2`, cert.EventID, cert.UserID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListByUser returns a user's certificates, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Certificate, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+certColumns+` FROM certificates
		WHERE user_id = $1 ORDER BY issued_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Certificate
	for rows.Next() {
		cert, err := scanCertificate(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *cert)
	}
	return list, rows.Err()
}
