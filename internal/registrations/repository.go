package registrations

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatherly/backend/internal/models"
)

const regColumns = `id, event_id, user_id, status, registered_at,
	payment_confirmed_at, check_in_count, certificate_issued, created_at, updated_at`

// Repository handles registration persistence. Capacity-admitting writes lock
// the event row so concurrent admissions for the same event serialize.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a registrations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanRegistration(row pgx.Row) (*models.Registration, error) {
	var reg models.Registration
	err := row.Scan(&reg.ID, &reg.EventID, &reg.UserID, &reg.Status, &reg.RegisteredAt,
		&reg.PaymentConfirmed, &reg.CheckInCount, &reg.CertificateIssued,
		&reg.CreatedAt, &reg.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// GetEvent returns the registration's event, or nil when absent.
func (r *Repository) GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	const q = `SELECT id, organizer_id, title, kind, requires_approval,
		registration_opens, registration_closes, max_registrations,
		allowed_check_ins, status, starts_at, ends_at
		FROM events WHERE id = $1`
	var e models.Event
	err := r.pool.QueryRow(ctx, q, id).Scan(&e.ID, &e.OrganizerID, &e.Title, &e.Kind,
		&e.RequiresApproval, &e.RegistrationOpens, &e.RegistrationCloses,
		&e.MaxRegistrations, &e.AllowedCheckIns, &e.Status, &e.StartsAt, &e.EndsAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetByID returns a registration by ID, or nil when absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	reg, err := scanRegistration(r.pool.QueryRow(ctx,
		`SELECT `+regColumns+` FROM registrations WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return reg, err
}

// GetByEventAndUser returns the registration for an (event, user) pair, or
// nil when absent.
func (r *Repository) GetByEventAndUser(ctx context.Context, eventID, userID uuid.UUID) (*models.Registration, error) {
	reg, err := scanRegistration(r.pool.QueryRow(ctx,
		`SELECT `+regColumns+` FROM registrations WHERE event_id = $1 AND user_id = $2`,
		eventID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return reg, err
}

// Insert persists a registration without touching capacity. The unique
// (event_id, user_id) constraint surfaces as ErrDuplicate.
func (r *Repository) Insert(ctx context.Context, reg *models.Registration) error {
	const q = `INSERT INTO registrations (id, event_id, user_id, status, registered_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4)
		RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, reg.EventID, reg.UserID, reg.Status, reg.RegisteredAt).
		Scan(&reg.ID, &reg.CreatedAt, &reg.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// lockEventAndCount takes the event row lock and returns the current number
// of capacity-consuming registrations.
func lockEventAndCount(ctx context.Context, tx pgx.Tx, eventID uuid.UUID) (int, error) {
	var locked uuid.UUID
	if err := tx.QueryRow(ctx,
		`SELECT id FROM events WHERE id = $1 FOR UPDATE`, eventID).Scan(&locked); err != nil {
		return 0, err
	}
	var n int
	err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM registrations
		WHERE event_id = $1 AND status IN ('APPROVED', 'CONFIRMED')`, eventID).Scan(&n)
	return n, err
}

// InsertAdmitted persists an APPROVED registration, admitting it against the
// capacity limit in one transaction.
func (r *Repository) InsertAdmitted(ctx context.Context, reg *models.Registration, limit *int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if limit != nil {
		n, err := lockEventAndCount(ctx, tx, reg.EventID)
		if err != nil {
			return err
		}
		if n >= *limit {
			return ErrCapacityFull
		}
	}

	const q = `INSERT INTO registrations (id, event_id, user_id, status, registered_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4)
		RETURNING id, created_at, updated_at`
	err = tx.QueryRow(ctx, q, reg.EventID, reg.UserID, reg.Status, reg.RegisteredAt).
		Scan(&reg.ID, &reg.CreatedAt, &reg.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ApproveWithinCapacity moves a PENDING registration to APPROVED under the
// event's capacity lock. Returns false when the row was not PENDING.
func (r *Repository) ApproveWithinCapacity(ctx context.Context, regID, eventID uuid.UUID, limit *int) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	if limit != nil {
		n, err := lockEventAndCount(ctx, tx, eventID)
		if err != nil {
			return false, err
		}
		if n >= *limit {
			return false, ErrCapacityFull
		}
	}

	tag, err := tx.Exec(ctx, `UPDATE registrations
		SET status = 'APPROVED', updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'`, regID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	return true, tx.Commit(ctx)
}

// Transition conditionally moves a registration between statuses. The update
// only applies when the row still holds the expected prior status.
func (r *Repository) Transition(ctx context.Context, regID uuid.UUID, from, to models.RegistrationStatus, stampPayment bool) (bool, error) {
	q := `UPDATE registrations SET status = $3, updated_at = NOW()`
	if stampPayment {
		q = `UPDATE registrations SET status = $3, payment_confirmed_at = NOW(), updated_at = NOW()`
	}
	q += ` WHERE id = $1 AND status = $2`
	tag, err := r.pool.Exec(ctx, q, regID, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CancelFromAny moves any non-cancelled registration to CANCELLED.
func (r *Repository) CancelFromAny(ctx context.Context, regID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE registrations
		SET status = 'CANCELLED', updated_at = NOW()
		WHERE id = $1 AND status <> 'CANCELLED'`, regID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) list(ctx context.Context, q string, arg interface{}) ([]models.Registration, error) {
	rows, err := r.pool.Query(ctx, q, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *reg)
	}
	return list, rows.Err()
}

// ListByEvent returns an event's registrations, oldest first.
func (r *Repository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.Registration, error) {
	return r.list(ctx, `SELECT `+regColumns+` FROM registrations
		WHERE event_id = $1 ORDER BY registered_at ASC`, eventID)
}

// ListByUser returns a user's registrations, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Registration, error) {
	return r.list(ctx, `SELECT `+regColumns+` FROM registrations
		WHERE user_id = $1 ORDER BY registered_at DESC`, userID)
}
