package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cachimiro/pax-website-sub000/internal/domain"
	apperrors "github.com/cachimiro/pax-website-sub000/pkg/errors"
)

var (
	// ErrNotFound indicates the entity was not located.
	ErrNotFound = apperrors.ErrNotFound
	// ErrConflict indicates a unique constraint violation.
	ErrConflict = apperrors.ErrConflict
)

// LeadRepository reads lead contact records.
type LeadRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Lead, error)
}

// OpportunityRepository manages pipeline opportunities.
type OpportunityRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Opportunity, error)
	UpdateStage(ctx context.Context, id uuid.UUID, stage domain.Stage) error
}

// UserRepository reads internal operator records.
type UserRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// TemplateRepository reads message templates. Read-only at runtime.
type TemplateRepository interface {
	ListActiveByStage(ctx context.Context, stage domain.Stage) ([]domain.Template, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Template, error)
}

// DueMessage is a claimed queue row joined with lead contact info.
type DueMessage struct {
	Message   domain.QueuedMessage
	LeadName  string
	LeadEmail string
	LeadPhone string
}

// MessageLogRepository persists queued messages. Rows are append-then-
// update only; the log doubles as the outbound audit trail.
type MessageLogRepository interface {
	Insert(ctx context.Context, msg *domain.QueuedMessage) error
	// QueuedPairs returns the set of "slug:channel" keys already
	// queued, sending or sent for the lead under the given trigger
	// stage and opportunity. Used for dedup before enqueueing.
	QueuedPairs(ctx context.Context, leadID, opportunityID uuid.UUID, stage domain.Stage) (map[string]struct{}, error)
	// ClaimDue atomically flips up to limit due rows to sending and
	// returns them joined with lead contact info. Stale sending rows
	// are reclaimed so a crash mid-dispatch re-delivers rather than
	// wedges (at-least-once).
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]DueMessage, error)
	// Requeue puts a claimed row back to queued, e.g. when the lead
	// lacks the contact field for the channel this pass.
	Requeue(ctx context.Context, id uuid.UUID) error
	Finish(ctx context.Context, id uuid.UUID, status domain.MessageStatus, meta domain.MessageMetadata) error
	ListRecent(ctx context.Context, limit int) ([]domain.QueuedMessage, error)
}

// BookingRepository manages meeting bookings and their tracking state.
type BookingRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	LatestByType(ctx context.Context, opportunityID uuid.UUID, t domain.BookingType) (*domain.Booking, error)
	// DueForTracking selects pending bookings whose scheduled end plus
	// grace has passed, oldest first.
	DueForTracking(ctx context.Context, now time.Time, grace time.Duration, limit int) ([]domain.Booking, error)
	UpcomingWithin(ctx context.Context, from, until time.Time, limit int) ([]domain.Booking, error)
	RecordOutcome(ctx context.Context, id uuid.UUID, outcome domain.BookingOutcome, tracking domain.TrackingStatus) error
	MarkChecked(ctx context.Context, id uuid.UUID) error
	Reschedule(ctx context.Context, id uuid.UUID, newStart time.Time) error
}

// TaskRepository creates operational tasks.
type TaskRepository interface {
	Insert(ctx context.Context, task *domain.Task) error
}

// ActionLogRepository is the append-only automated-decision log.
type ActionLogRepository interface {
	Insert(ctx context.Context, action *domain.PostCallAction) error
	// Exists reports whether an equivalent action was already logged
	// for the booking: same action type and reasoning containing the
	// given substring.
	Exists(ctx context.Context, bookingID uuid.UUID, actionType, reasoningContains string) (bool, error)
}

// InvoiceRepository manages deposit invoices.
type InvoiceRepository interface {
	GetByOpportunity(ctx context.Context, opportunityID uuid.UUID) (*domain.Invoice, error)
	Insert(ctx context.Context, invoice *domain.Invoice) error
}

// AttemptStore persists per-dispatch attempt records.
type AttemptStore interface {
	AppendAttempt(ctx context.Context, attempt domain.DispatchAttempt) error
	ListByMessage(ctx context.Context, messageID uuid.UUID, limit int) ([]domain.DispatchAttempt, error)
}
