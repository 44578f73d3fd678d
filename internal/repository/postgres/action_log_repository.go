package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cachimiro/pax-website-sub000/internal/domain"
)

// ActionLogRepository persists the append-only decision log.
type ActionLogRepository struct {
	db *sqlx.DB
}

// NewActionLogRepository constructs the repository.
func NewActionLogRepository(db *sqlx.DB) *ActionLogRepository {
	return &ActionLogRepository{db: db}
}

// Insert appends a decision record. Rows are never updated or deleted.
func (r *ActionLogRepository) Insert(ctx context.Context, action *domain.PostCallAction) error {
	q := `INSERT INTO post_call_actions (id, booking_id, opportunity_id, action_type, reasoning, suggested_stage, confidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())`

	var stage *string
	if action.SuggestedStage != nil {
		s := string(*action.SuggestedStage)
		stage = &s
	}

	if _, err := r.db.ExecContext(ctx, q,
		action.ID, action.BookingID, action.OpportunityID,
		action.ActionType, action.Reasoning, stage, action.Confidence,
	); err != nil {
		return fmt.Errorf("action log repo: insert: %w", err)
	}
	return nil
}

// Exists reports whether an equivalent action is already logged for
// the booking, matching by action type and a reasoning substring.
func (r *ActionLogRepository) Exists(ctx context.Context, bookingID uuid.UUID, actionType, reasoningContains string) (bool, error) {
	q := `SELECT EXISTS (
		SELECT 1 FROM post_call_actions
		WHERE booking_id = $1 AND action_type = $2 AND reasoning ILIKE '%' || $3 || '%'
	)`

	var exists bool
	if err := r.db.QueryRowxContext(ctx, q, bookingID, actionType, reasoningContains).Scan(&exists); err != nil {
		return false, fmt.Errorf("action log repo: exists: %w", err)
	}
	return exists, nil
}
