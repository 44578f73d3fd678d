package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"github.com/cachimiro/pax-website-sub000/internal/domain"
)

// AttemptStore persists per-message dispatch attempts in Scylla.
// Attempts are append-only observability data kept out of the
// relational store so high send volume never bloats the message log.
type AttemptStore struct {
	session *gocql.Session
}

// NewAttemptStore creates a new attempt store.
func NewAttemptStore(session *gocql.Session) *AttemptStore {
	return &AttemptStore{session: session}
}

// AppendAttempt appends a dispatch attempt record.
func (s *AttemptStore) AppendAttempt(ctx context.Context, attempt domain.DispatchAttempt) error {
	durationMs := int64(attempt.Duration / time.Millisecond)
	if err := s.session.Query(`INSERT INTO dispatch_attempts (message_id, attempt_id, channel, status, error, external_id, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		attempt.MessageID.String(), attempt.ID.String(), string(attempt.Channel),
		string(attempt.Status), attempt.Error, attempt.ExternalID, durationMs, attempt.CreatedAt,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("attempt store: append: %w", err)
	}
	return nil
}

// ListByMessage returns the newest attempts for a message.
func (s *AttemptStore) ListByMessage(ctx context.Context, messageID uuid.UUID, limit int) ([]domain.DispatchAttempt, error) {
	if limit <= 0 {
		limit = 50
	}

	iter := s.session.Query(`SELECT attempt_id, channel, status, error, external_id, duration_ms, created_at
		FROM dispatch_attempts WHERE message_id = ? LIMIT ?`,
		messageID.String(), limit,
	).WithContext(ctx).Iter()

	var (
		attempts   []domain.DispatchAttempt
		idStr      string
		channel    string
		status     string
		errText    string
		externalID string
		durationMs int64
		createdAt  time.Time
	)

	for iter.Scan(&idStr, &channel, &status, &errText, &externalID, &durationMs, &createdAt) {
		id, err := uuid.Parse(idStr)
		if err != nil {
			continue
		}
		attempts = append(attempts, domain.DispatchAttempt{
			ID:         id,
			MessageID:  messageID,
			Channel:    domain.Channel(channel),
			Status:     domain.MessageStatus(status),
			Error:      errText,
			ExternalID: externalID,
			Duration:   time.Duration(durationMs) * time.Millisecond,
			CreatedAt:  createdAt,
		})
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("attempt store: iter close: %w", err)
	}
	return attempts, nil
}
