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

// InvoiceRepository manages deposit invoices in PostgreSQL.
type InvoiceRepository struct {
	db *sqlx.DB
}

// NewInvoiceRepository constructs the repository.
func NewInvoiceRepository(db *sqlx.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// GetByOpportunity returns the newest invoice for an opportunity.
func (r *InvoiceRepository) GetByOpportunity(ctx context.Context, opportunityID uuid.UUID) (*domain.Invoice, error) {
	q := `SELECT id, opportunity_id, amount_pence, deposit_pence, status, checkout_session_id, checkout_url, created_at
		FROM invoices WHERE opportunity_id = $1
		ORDER BY created_at DESC LIMIT 1`

	var rec struct {
		ID                uuid.UUID `db:"id"`
		OpportunityID     uuid.UUID `db:"opportunity_id"`
		AmountPence       int64     `db:"amount_pence"`
		DepositPence      int64     `db:"deposit_pence"`
		Status            string    `db:"status"`
		CheckoutSessionID string    `db:"checkout_session_id"`
		CheckoutURL       string    `db:"checkout_url"`
		CreatedAt         time.Time `db:"created_at"`
	}
	if err := r.db.QueryRowxContext(ctx, q, opportunityID).StructScan(&rec); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("invoice repo: get by opportunity: %w", err)
	}

	return &domain.Invoice{
		ID:                rec.ID,
		OpportunityID:     rec.OpportunityID,
		AmountPence:       rec.AmountPence,
		DepositPence:      rec.DepositPence,
		Status:            domain.InvoiceStatus(rec.Status),
		CheckoutSessionID: rec.CheckoutSessionID,
		CheckoutURL:       rec.CheckoutURL,
		CreatedAt:         rec.CreatedAt,
	}, nil
}

// Insert creates a new invoice.
func (r *InvoiceRepository) Insert(ctx context.Context, invoice *domain.Invoice) error {
	q := `INSERT INTO invoices (id, opportunity_id, amount_pence, deposit_pence, status, checkout_session_id, checkout_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())`

	if _, err := r.db.ExecContext(ctx, q,
		invoice.ID, invoice.OpportunityID, invoice.AmountPence,
		invoice.DepositPence, string(invoice.Status), invoice.CheckoutSessionID, invoice.CheckoutURL,
	); err != nil {
		return fmt.Errorf("invoice repo: insert: %w", err)
	}
	return nil
}
