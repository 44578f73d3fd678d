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

// LeadRepository implements repository.LeadRepository using PostgreSQL.
type LeadRepository struct {
	db *sqlx.DB
}

// NewLeadRepository constructs the repository.
func NewLeadRepository(db *sqlx.DB) *LeadRepository {
	return &LeadRepository{db: db}
}

// Get fetches a lead by id.
func (r *LeadRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Lead, error) {
	q := `SELECT id, name, email, phone, created_at FROM leads WHERE id = $1`

	var rec struct {
		ID        uuid.UUID `db:"id"`
		Name      string    `db:"name"`
		Email     string    `db:"email"`
		Phone     string    `db:"phone"`
		CreatedAt time.Time `db:"created_at"`
	}
	if err := r.db.QueryRowxContext(ctx, q, id).StructScan(&rec); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("lead repo: get: %w", err)
	}

	return &domain.Lead{
		ID: rec.ID, Name: rec.Name, Email: rec.Email,
		Phone: rec.Phone, CreatedAt: rec.CreatedAt,
	}, nil
}

// OpportunityRepository implements repository.OpportunityRepository.
type OpportunityRepository struct {
	db *sqlx.DB
}

// NewOpportunityRepository constructs the repository.
func NewOpportunityRepository(db *sqlx.DB) *OpportunityRepository {
	return &OpportunityRepository{db: db}
}

type opportunityRecord struct {
	ID            uuid.UUID     `db:"id"`
	LeadID        uuid.UUID     `db:"lead_id"`
	Stage         string        `db:"stage"`
	ProjectType   string        `db:"project_type"`
	ValueEstimate int64         `db:"value_estimate_pence"`
	OwnerUserID   uuid.NullUUID `db:"owner_user_id"`
	CreatedAt     time.Time     `db:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at"`
}

func (rec opportunityRecord) toDomain() *domain.Opportunity {
	opp := &domain.Opportunity{
		ID:            rec.ID,
		LeadID:        rec.LeadID,
		Stage:         domain.Stage(rec.Stage),
		ProjectType:   rec.ProjectType,
		ValueEstimate: rec.ValueEstimate,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
	if rec.OwnerUserID.Valid {
		owner := rec.OwnerUserID.UUID
		opp.OwnerUserID = &owner
	}
	return opp
}

// Get fetches an opportunity by id.
func (r *OpportunityRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Opportunity, error) {
	q := `SELECT id, lead_id, stage, project_type, value_estimate_pence, owner_user_id, created_at, updated_at
		FROM opportunities WHERE id = $1`

	var rec opportunityRecord
	if err := r.db.QueryRowxContext(ctx, q, id).StructScan(&rec); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("opportunity repo: get: %w", err)
	}
	return rec.toDomain(), nil
}

// UpdateStage moves the opportunity to a new stage.
func (r *OpportunityRepository) UpdateStage(ctx context.Context, id uuid.UUID, stage domain.Stage) error {
	q := `UPDATE opportunities SET stage = $1, updated_at = now() WHERE id = $2`
	res, err := r.db.ExecContext(ctx, q, string(stage), id)
	if err != nil {
		return fmt.Errorf("opportunity repo: update stage: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UserRepository implements repository.UserRepository.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs the repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Get fetches a user by id.
func (r *UserRepository) Get(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	q := `SELECT id, name, email FROM users WHERE id = $1`

	var rec struct {
		ID    uuid.UUID `db:"id"`
		Name  string    `db:"name"`
		Email string    `db:"email"`
	}
	if err := r.db.QueryRowxContext(ctx, q, id).StructScan(&rec); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("user repo: get: %w", err)
	}
	return &domain.User{ID: rec.ID, Name: rec.Name, Email: rec.Email}, nil
}
