package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cachimiro/pax-website-sub000/internal/domain"
	"github.com/cachimiro/pax-website-sub000/internal/repository"
)

// BookingRepository manages bookings in PostgreSQL.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository constructs the repository.
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

type bookingRecord struct {
	ID             uuid.UUID `db:"id"`
	OpportunityID  uuid.UUID `db:"opportunity_id"`
	Type           string    `db:"type"`
	ScheduledAt    time.Time `db:"scheduled_at"`
	DurationMin    int       `db:"duration_min"`
	Outcome        string    `db:"outcome"`
	TrackingStatus string    `db:"tracking_status"`
	GoogleEventID  string    `db:"google_event_id"`
	MeetLink       string    `db:"meet_link"`
	CustomerJoined bool      `db:"customer_joined"`
	OwnerJoined    bool      `db:"owner_joined"`
	AttendeeCount  int       `db:"attendee_count"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func (rec bookingRecord) toDomain() domain.Booking {
	return domain.Booking{
		ID:             rec.ID,
		OpportunityID:  rec.OpportunityID,
		Type:           domain.BookingType(rec.Type),
		ScheduledAt:    rec.ScheduledAt,
		DurationMin:    rec.DurationMin,
		Outcome:        domain.BookingOutcome(rec.Outcome),
		TrackingStatus: domain.TrackingStatus(rec.TrackingStatus),
		GoogleEventID:  rec.GoogleEventID,
		MeetLink:       rec.MeetLink,
		CustomerJoined: rec.CustomerJoined,
		OwnerJoined:    rec.OwnerJoined,
		AttendeeCount:  rec.AttendeeCount,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
}

const bookingColumns = `id, opportunity_id, type, scheduled_at, duration_min, outcome, tracking_status,
	google_event_id, meet_link, customer_joined, owner_joined, attendee_count, created_at, updated_at`

// Get fetches a booking by id.
func (r *BookingRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	var rec bookingRecord
	if err := r.db.QueryRowxContext(ctx, q, id).StructScan(&rec); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("booking repo: get: %w", err)
	}
	booking := rec.toDomain()
	return &booking, nil
}

// LatestByType returns the most recent booking of the given type.
func (r *BookingRepository) LatestByType(ctx context.Context, opportunityID uuid.UUID, t domain.BookingType) (*domain.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE opportunity_id = $1 AND type = $2
		ORDER BY created_at DESC LIMIT 1`

	var rec bookingRecord
	if err := r.db.QueryRowxContext(ctx, q, opportunityID, string(t)).StructScan(&rec); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("booking repo: latest by type: %w", err)
	}
	booking := rec.toDomain()
	return &booking, nil
}

// DueForTracking selects pending bookings whose scheduled end plus
// grace has passed, oldest first.
func (r *BookingRepository) DueForTracking(ctx context.Context, now time.Time, grace time.Duration, limit int) ([]domain.Booking, error) {
	if limit <= 0 {
		limit = 20
	}

	q := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE outcome = 'pending' AND tracking_status = 'pending'
			AND scheduled_at + make_interval(mins => duration_min) <= $1
		ORDER BY scheduled_at ASC
		LIMIT $2`

	return r.queryBookings(ctx, q, now.Add(-grace), limit)
}

// UpcomingWithin selects pending bookings starting inside the window.
func (r *BookingRepository) UpcomingWithin(ctx context.Context, from, until time.Time, limit int) ([]domain.Booking, error) {
	if limit <= 0 {
		limit = 20
	}

	q := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE outcome = 'pending' AND scheduled_at >= $1 AND scheduled_at <= $2
		ORDER BY scheduled_at ASC
		LIMIT $3`

	return r.queryBookings(ctx, q, from, until, limit)
}

func (r *BookingRepository) queryBookings(ctx context.Context, q string, args ...any) ([]domain.Booking, error) {
	rows, err := r.db.QueryxContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("booking repo: select: %w", err)
	}
	defer rows.Close()

	var bookings []domain.Booking
	for rows.Next() {
		var rec bookingRecord
		if err := rows.StructScan(&rec); err != nil {
			return nil, fmt.Errorf("booking repo: scan: %w", err)
		}
		bookings = append(bookings, rec.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("booking repo: rows err: %w", err)
	}
	return bookings, nil
}

// RecordOutcome sets the outcome and tracking status in one write.
func (r *BookingRepository) RecordOutcome(ctx context.Context, id uuid.UUID, outcome domain.BookingOutcome, tracking domain.TrackingStatus) error {
	q := `UPDATE bookings SET outcome = $1, tracking_status = $2, updated_at = now() WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, q, string(outcome), string(tracking), id); err != nil {
		return fmt.Errorf("booking repo: record outcome: %w", err)
	}
	return nil
}

// MarkChecked closes a tracking pass without changing the outcome.
func (r *BookingRepository) MarkChecked(ctx context.Context, id uuid.UUID) error {
	q := `UPDATE bookings SET tracking_status = 'checked', updated_at = now() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, q, id); err != nil {
		return fmt.Errorf("booking repo: mark checked: %w", err)
	}
	return nil
}

// Reschedule updates the stored start time after an external move.
func (r *BookingRepository) Reschedule(ctx context.Context, id uuid.UUID, newStart time.Time) error {
	q := `UPDATE bookings SET scheduled_at = $1, updated_at = now() WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, q, newStart, id); err != nil {
		return fmt.Errorf("booking repo: reschedule: %w", err)
	}
	return nil
}
