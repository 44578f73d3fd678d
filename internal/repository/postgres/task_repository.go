package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/cachimiro/pax-website-sub000/internal/domain"
)

// TaskRepository creates operational tasks in PostgreSQL.
type TaskRepository struct {
	db *sqlx.DB
}

// NewTaskRepository constructs the repository.
func NewTaskRepository(db *sqlx.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Insert appends a new task.
func (r *TaskRepository) Insert(ctx context.Context, task *domain.Task) error {
	q := `INSERT INTO tasks (id, opportunity_id, type, description, due_at, owner_user_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())`

	if _, err := r.db.ExecContext(ctx, q,
		task.ID, task.OpportunityID, task.Type, task.Description,
		task.DueAt, task.OwnerUserID, string(task.Status),
	); err != nil {
		return fmt.Errorf("task repo: insert: %w", err)
	}
	return nil
}
