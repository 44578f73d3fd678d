package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cachimiro/pax-website-sub000/internal/domain"
	"github.com/cachimiro/pax-website-sub000/internal/repository"
)

// staleClaim is how long a row may sit in sending before it is
// reclaimed. Covers a crash between dispatch and the status write.
const staleClaim = 10 * time.Minute

// MessageLogRepository persists queued messages in PostgreSQL.
type MessageLogRepository struct {
	db *sqlx.DB
}

// NewMessageLogRepository constructs the repository.
func NewMessageLogRepository(db *sqlx.DB) *MessageLogRepository {
	return &MessageLogRepository{db: db}
}

type messageRecord struct {
	ID           uuid.UUID    `db:"id"`
	LeadID       uuid.UUID    `db:"lead_id"`
	Channel      string       `db:"channel"`
	TemplateSlug string       `db:"template_slug"`
	Status       string       `db:"status"`
	ScheduledFor sql.NullTime `db:"scheduled_for"`
	Metadata     []byte       `db:"metadata"`
	CreatedAt    time.Time    `db:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at"`
}

func (rec messageRecord) toDomain() (domain.QueuedMessage, error) {
	var meta domain.MessageMetadata
	if len(rec.Metadata) > 0 {
		if err := json.Unmarshal(rec.Metadata, &meta); err != nil {
			return domain.QueuedMessage{}, fmt.Errorf("message repo: unmarshal metadata: %w", err)
		}
	}

	msg := domain.QueuedMessage{
		ID:           rec.ID,
		LeadID:       rec.LeadID,
		Channel:      domain.Channel(rec.Channel),
		TemplateSlug: rec.TemplateSlug,
		Status:       domain.MessageStatus(rec.Status),
		Metadata:     meta,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
	if rec.ScheduledFor.Valid {
		t := rec.ScheduledFor.Time
		msg.ScheduledFor = &t
	}
	return msg, nil
}

// Insert appends a new queued message. A duplicate under the
// auto-trigger uniqueness index is dropped silently: the dedup query
// already decided the row is wanted, so a conflict only means a
// concurrent run got there first.
func (r *MessageLogRepository) Insert(ctx context.Context, msg *domain.QueuedMessage) error {
	meta, err := json.Marshal(msg.Metadata)
	if err != nil {
		return fmt.Errorf("message repo: marshal metadata: %w", err)
	}

	q := `INSERT INTO message_logs (id, lead_id, channel, template_slug, status, scheduled_for, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT DO NOTHING`

	now := time.Now().UTC()
	if _, err := r.db.ExecContext(ctx, q,
		msg.ID, msg.LeadID, string(msg.Channel), msg.TemplateSlug,
		string(msg.Status), msg.ScheduledFor, meta, now,
	); err != nil {
		return fmt.Errorf("message repo: insert: %w", err)
	}
	return nil
}

// QueuedPairs returns the "slug:channel" keys already represented for
// the lead under the given trigger stage and opportunity.
func (r *MessageLogRepository) QueuedPairs(ctx context.Context, leadID, opportunityID uuid.UUID, stage domain.Stage) (map[string]struct{}, error) {
	q := `SELECT template_slug, channel FROM message_logs
		WHERE lead_id = $1
			AND status IN ('queued','sending','sent')
			AND metadata->>'trigger_stage' = $2
			AND metadata->>'opportunity_id' = $3`

	rows, err := r.db.QueryxContext(ctx, q, leadID, string(stage), opportunityID.String())
	if err != nil {
		return nil, fmt.Errorf("message repo: queued pairs: %w", err)
	}
	defer rows.Close()

	pairs := make(map[string]struct{})
	for rows.Next() {
		var slug, channel string
		if err := rows.Scan(&slug, &channel); err != nil {
			return nil, fmt.Errorf("message repo: scan pair: %w", err)
		}
		pairs[slug+":"+channel] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("message repo: rows err: %w", err)
	}
	return pairs, nil
}

// ClaimDue flips due rows to sending and returns them with lead
// contact info. SKIP LOCKED keeps two overlapping passes from claiming
// the same row; stale sending rows are reclaimed after staleClaim.
func (r *MessageLogRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]repository.DueMessage, error) {
	if limit <= 0 {
		limit = 50
	}

	q := `UPDATE message_logs SET status = 'sending', updated_at = $1
		WHERE id IN (
			SELECT id FROM message_logs
			WHERE (status = 'queued' OR (status = 'sending' AND updated_at < $2))
				AND (scheduled_for IS NULL OR scheduled_for <= $1)
			ORDER BY scheduled_for ASC NULLS FIRST, created_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, lead_id, channel, template_slug, status, scheduled_for, metadata, created_at, updated_at`

	rows, err := r.db.QueryxContext(ctx, q, now, now.Add(-staleClaim), limit)
	if err != nil {
		return nil, fmt.Errorf("message repo: claim due: %w", err)
	}
	defer rows.Close()

	var (
		claimed []domain.QueuedMessage
		leadIDs []uuid.UUID
	)
	for rows.Next() {
		var rec messageRecord
		if err := rows.StructScan(&rec); err != nil {
			return nil, fmt.Errorf("message repo: scan claimed: %w", err)
		}
		msg, err := rec.toDomain()
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, msg)
		leadIDs = append(leadIDs, msg.LeadID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("message repo: rows err: %w", err)
	}
	if len(claimed) == 0 {
		return nil, nil
	}

	contacts, err := r.leadContacts(ctx, leadIDs)
	if err != nil {
		return nil, err
	}

	due := make([]repository.DueMessage, 0, len(claimed))
	for _, msg := range claimed {
		d := repository.DueMessage{Message: msg}
		if c, ok := contacts[msg.LeadID]; ok {
			d.LeadName, d.LeadEmail, d.LeadPhone = c.name, c.email, c.phone
		}
		due = append(due, d)
	}
	return due, nil
}

type leadContact struct {
	name  string
	email string
	phone string
}

func (r *MessageLogRepository) leadContacts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]leadContact, error) {
	q, args, err := sqlx.In(`SELECT id, name, email, phone FROM leads WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("message repo: build contact query: %w", err)
	}

	rows, err := r.db.QueryxContext(ctx, r.db.Rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("message repo: lead contacts: %w", err)
	}
	defer rows.Close()

	contacts := make(map[uuid.UUID]leadContact, len(ids))
	for rows.Next() {
		var (
			id                 uuid.UUID
			name, email, phone string
		)
		if err := rows.Scan(&id, &name, &email, &phone); err != nil {
			return nil, fmt.Errorf("message repo: scan contact: %w", err)
		}
		contacts[id] = leadContact{name: name, email: email, phone: phone}
	}
	return contacts, rows.Err()
}

// Requeue puts a claimed row back to queued for the next pass.
func (r *MessageLogRepository) Requeue(ctx context.Context, id uuid.UUID) error {
	q := `UPDATE message_logs SET status = 'queued', updated_at = now() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, q, id); err != nil {
		return fmt.Errorf("message repo: requeue: %w", err)
	}
	return nil
}

// Finish records the terminal status and audit metadata for a row.
func (r *MessageLogRepository) Finish(ctx context.Context, id uuid.UUID, status domain.MessageStatus, meta domain.MessageMetadata) error {
	payload, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("message repo: marshal metadata: %w", err)
	}

	q := `UPDATE message_logs SET status = $1, metadata = $2, updated_at = now() WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, q, string(status), payload, id); err != nil {
		return fmt.Errorf("message repo: finish: %w", err)
	}
	return nil
}

// ListRecent returns the newest rows for operator troubleshooting.
func (r *MessageLogRepository) ListRecent(ctx context.Context, limit int) ([]domain.QueuedMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	q := `SELECT id, lead_id, channel, template_slug, status, scheduled_for, metadata, created_at, updated_at
		FROM message_logs ORDER BY created_at DESC LIMIT $1`

	rows, err := r.db.QueryxContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("message repo: list recent: %w", err)
	}
	defer rows.Close()

	var messages []domain.QueuedMessage
	for rows.Next() {
		var rec messageRecord
		if err := rows.StructScan(&rec); err != nil {
			return nil, fmt.Errorf("message repo: scan: %w", err)
		}
		msg, err := rec.toDomain()
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("message repo: rows err: %w", err)
	}
	return messages, nil
}
