package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/cachimiro/pax-website-sub000/internal/domain"
	"github.com/cachimiro/pax-website-sub000/internal/repository"
)

// TemplateRepository reads message templates from PostgreSQL.
type TemplateRepository struct {
	db *sqlx.DB
}

// NewTemplateRepository constructs the repository.
func NewTemplateRepository(db *sqlx.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

type templateRecord struct {
	Slug         string         `db:"slug"`
	Channels     []byte         `db:"channels"`
	TriggerStage sql.NullString `db:"trigger_stage"`
	DelayRule    string         `db:"delay_rule"`
	DelayMinutes int            `db:"delay_minutes"`
	Subject      string         `db:"subject"`
	Body         string         `db:"body"`
	Active       bool           `db:"active"`
}

func (rec templateRecord) toDomain() (domain.Template, error) {
	var channels []domain.Channel
	if err := json.Unmarshal(rec.Channels, &channels); err != nil {
		return domain.Template{}, fmt.Errorf("template repo: unmarshal channels: %w", err)
	}

	tpl := domain.Template{
		Slug:         rec.Slug,
		Channels:     channels,
		DelayRule:    domain.DelayRule(rec.DelayRule),
		DelayMinutes: rec.DelayMinutes,
		Subject:      rec.Subject,
		Body:         rec.Body,
		Active:       rec.Active,
	}
	if rec.TriggerStage.Valid {
		stage := domain.Stage(rec.TriggerStage.String)
		tpl.TriggerStage = &stage
	}
	return tpl, nil
}

const templateColumns = `slug, channels, trigger_stage, delay_rule, delay_minutes, subject, body, active`

// ListActiveByStage returns active templates triggered by the stage.
func (r *TemplateRepository) ListActiveByStage(ctx context.Context, stage domain.Stage) ([]domain.Template, error) {
	q := `SELECT ` + templateColumns + ` FROM templates WHERE active AND trigger_stage = $1 ORDER BY slug`

	rows, err := r.db.QueryxContext(ctx, q, string(stage))
	if err != nil {
		return nil, fmt.Errorf("template repo: list by stage: %w", err)
	}
	defer rows.Close()

	var templates []domain.Template
	for rows.Next() {
		var rec templateRecord
		if err := rows.StructScan(&rec); err != nil {
			return nil, fmt.Errorf("template repo: scan: %w", err)
		}
		tpl, err := rec.toDomain()
		if err != nil {
			return nil, err
		}
		templates = append(templates, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("template repo: rows err: %w", err)
	}
	return templates, nil
}

// GetBySlug fetches a single template.
func (r *TemplateRepository) GetBySlug(ctx context.Context, slug string) (*domain.Template, error) {
	q := `SELECT ` + templateColumns + ` FROM templates WHERE slug = $1`

	var rec templateRecord
	if err := r.db.QueryRowxContext(ctx, q, slug).StructScan(&rec); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("template repo: get: %w", err)
	}
	tpl, err := rec.toDomain()
	if err != nil {
		return nil, err
	}
	return &tpl, nil
}
