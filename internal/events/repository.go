package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatherly/backend/internal/models"
)

const eventColumns = `id, organizer_id, title, description, short_description,
	location_address, location_url, starts_at, ends_at, kind, price, pix_key,
	payment_instructions, requires_approval, registration_opens, registration_closes,
	max_registrations, allowed_check_ins, status, banner_url, workload_hours,
	average_rating, created_at, updated_at`

// Repository handles event persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an events repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanEvent(row pgx.Row) (*models.Event, error) {
	var e models.Event
	err := row.Scan(&e.ID, &e.OrganizerID, &e.Title, &e.Description, &e.ShortDescription,
		&e.LocationAddress, &e.LocationURL, &e.StartsAt, &e.EndsAt, &e.Kind, &e.Price,
		&e.PixKey, &e.PaymentInstructions, &e.RequiresApproval, &e.RegistrationOpens,
		&e.RegistrationCloses, &e.MaxRegistrations, &e.AllowedCheckIns, &e.Status,
		&e.BannerURL, &e.WorkloadHours, &e.AverageRating, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Insert persists a new event.
func (r *Repository) Insert(ctx context.Context, e *models.Event) error {
	const q = `INSERT INTO events (id, organizer_id, title, description, short_description,
		location_address, location_url, starts_at, ends_at, kind, price, pix_key,
		payment_instructions, requires_approval, registration_opens, registration_closes,
		max_registrations, allowed_check_ins, status, banner_url, workload_hours)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		$14, $15, $16, $17, $18, $19, $20)
		RETURNING id, average_rating, created_at, updated_at`
	return r.pool.QueryRow(ctx, q,
		e.OrganizerID, e.Title, e.Description, e.ShortDescription, e.LocationAddress,
		e.LocationURL, e.StartsAt, e.EndsAt, e.Kind, e.Price, e.PixKey,
		e.PaymentInstructions, e.RequiresApproval, e.RegistrationOpens, e.RegistrationCloses,
		e.MaxRegistrations, e.AllowedCheckIns, e.Status, e.BannerURL, e.WorkloadHours,
	).Scan(&e.ID, &e.AverageRating, &e.CreatedAt, &e.UpdatedAt)
}

// GetByID returns an event by ID, or nil when absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	e, err := scanEvent(r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

// Update rewrites all mutable event fields.
func (r *Repository) Update(ctx context.Context, e *models.Event) error {
	const q = `UPDATE events SET title = $2, description = $3, short_description = $4,
		location_address = $5, location_url = $6, starts_at = $7, ends_at = $8, kind = $9,
		price = $10, pix_key = $11, payment_instructions = $12, requires_approval = $13,
		registration_opens = $14, registration_closes = $15, max_registrations = $16,
		allowed_check_ins = $17, status = $18, banner_url = $19, workload_hours = $20,
		updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`
	return r.pool.QueryRow(ctx, q, e.ID, e.Title, e.Description, e.ShortDescription,
		e.LocationAddress, e.LocationURL, e.StartsAt, e.EndsAt, e.Kind, e.Price, e.PixKey,
		e.PaymentInstructions, e.RequiresApproval, e.RegistrationOpens, e.RegistrationCloses,
		e.MaxRegistrations, e.AllowedCheckIns, e.Status, e.BannerURL, e.WorkloadHours,
	).Scan(&e.UpdatedAt)
}

// List returns events matching the filter, newest first.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]models.Event, error) {
	q := `SELECT ` + eventColumns + ` FROM events WHERE 1=1`
	args := []interface{}{}
	if f.OrganizerID != nil {
		args = append(args, *f.OrganizerID)
		q += fmt.Sprintf(" AND organizer_id = $%d", len(args))
	}
	if f.Status != nil {
		args = append(args, *f.Status)
		q += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.PublicOnly {
		q += ` AND status NOT IN ('DRAFT', 'ARCHIVED')`
	}
	q += ` ORDER BY starts_at DESC`

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *e)
	}
	return list, rows.Err()
}

// CountCapacityConsuming returns the number of APPROVED or CONFIRMED
// registrations for an event.
func (r *Repository) CountCapacityConsuming(ctx context.Context, eventID uuid.UUID) (int, error) {
	const q = `SELECT COUNT(*) FROM registrations
		WHERE event_id = $1 AND status IN ('APPROVED', 'CONFIRMED')`
	var n int
	err := r.pool.QueryRow(ctx, q, eventID).Scan(&n)
	return n, err
}

// Delete removes an event. Dependent lifecycle rows cascade.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	return err
}
