package ratings

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatherly/backend/internal/models"
)

// Repository handles rating persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a ratings repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetEvent returns an event by ID, or nil when absent.
func (r *Repository) GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	const q = `SELECT id, organizer_id, title, status, average_rating FROM events WHERE id = $1`
	var e models.Event
	err := r.pool.QueryRow(ctx, q, id).Scan(&e.ID, &e.OrganizerID, &e.Title, &e.Status, &e.AverageRating)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetRegistration returns the registration for an (event, user) pair, or nil.
func (r *Repository) GetRegistration(ctx context.Context, eventID, userID uuid.UUID) (*models.Registration, error) {
	const q = `SELECT id, event_id, user_id, status, check_in_count
		FROM registrations WHERE event_id = $1 AND user_id = $2`
	var reg models.Registration
	err := r.pool.QueryRow(ctx, q, eventID, userID).Scan(&reg.ID, &reg.EventID,
		&reg.UserID, &reg.Status, &reg.CheckInCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// GetByEventAndUser returns the rating for an (event, user) pair, or nil.
func (r *Repository) GetByEventAndUser(ctx context.Context, eventID, userID uuid.UUID) (*models.Rating, error) {
	const q = `SELECT id, event_id, user_id, score, comment, rated_at, created_at
		FROM ratings WHERE event_id = $1 AND user_id = $2`
	var rt models.Rating
	err := r.pool.QueryRow(ctx, q, eventID, userID).Scan(&rt.ID, &rt.EventID,
		&rt.UserID, &rt.Score, &rt.Comment, &rt.RatedAt, &rt.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rt, nil
}

// CreateAndRecompute inserts the rating and refreshes the event's cached
// average in one transaction. The event row lock serializes concurrent
// ratings so the average always reflects every stored score.
func (r *Repository) CreateAndRecompute(ctx context.Context, rating *models.Rating) (float64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var locked uuid.UUID
	if err := tx.QueryRow(ctx, `SELECT id FROM events WHERE id = $1 FOR UPDATE`,
		rating.EventID).Scan(&locked); err != nil {
		return 0, err
	}

	const insert = `INSERT INTO ratings (id, event_id, user_id, score, comment)
		VALUES (gen_random_uuid(), $1, $2, $3, $4)
		RETURNING id, rated_at, created_at`
	err = tx.QueryRow(ctx, insert, rating.EventID, rating.UserID, rating.Score, rating.Comment).
		Scan(&rating.ID, &rating.RatedAt, &rating.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicate
		}
		return 0, err
	}

	var avg float64
	if err := tx.QueryRow(ctx, `SELECT AVG(score)::float8 FROM ratings WHERE event_id = $1`,
		rating.EventID).Scan(&avg); err != nil {
		return 0, err
	}
	if _, err := tx.Exec(ctx, `UPDATE events SET average_rating = $2, updated_at = NOW()
		WHERE id = $1`, rating.EventID, avg); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return avg, nil
}

// ListByEvent returns an event's ratings, newest first.
func (r *Repository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.Rating, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, event_id, user_id, score, comment, rated_at, created_at
		FROM ratings WHERE event_id = $1 ORDER BY rated_at DESC`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Rating
	for rows.Next() {
		var rt models.Rating
		if err := rows.Scan(&rt.ID, &rt.EventID, &rt.UserID, &rt.Score, &rt.Comment,
			&rt.RatedAt, &rt.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, rt)
	}
	return list, rows.Err()
}
