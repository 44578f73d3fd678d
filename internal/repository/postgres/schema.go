package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Bootstrap creates the engine's tables if they do not exist. The
// marketing site owns migrations for its own tables; the engine only
// touches the ones below.
func Bootstrap(ctx context.Context, db *sqlx.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS leads (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS opportunities (
			id UUID PRIMARY KEY,
			lead_id UUID NOT NULL REFERENCES leads (id),
			stage TEXT NOT NULL,
			project_type TEXT NOT NULL DEFAULT '',
			value_estimate_pence BIGINT NOT NULL DEFAULT 0,
			owner_user_id UUID,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS templates (
			slug TEXT PRIMARY KEY,
			channels JSONB NOT NULL DEFAULT '[]',
			trigger_stage TEXT,
			delay_rule TEXT NOT NULL,
			delay_minutes INT NOT NULL DEFAULT 0,
			subject TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE TABLE IF NOT EXISTS message_logs (
			id UUID PRIMARY KEY,
			lead_id UUID NOT NULL REFERENCES leads (id),
			channel TEXT NOT NULL,
			template_slug TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			scheduled_for TIMESTAMPTZ,
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS message_logs_due_idx
			ON message_logs (status, scheduled_for)`,
		// Safeguard against two overlapping automation runs racing the
		// dedup query. The query-level dedup remains the primary check.
		`CREATE UNIQUE INDEX IF NOT EXISTS message_logs_auto_dedup_idx
			ON message_logs (
				lead_id, template_slug, channel,
				(metadata->>'opportunity_id'), (metadata->>'trigger_stage')
			)
			WHERE status IN ('queued','sending','sent')
				AND metadata->>'auto_triggered' = 'true'`,
		`CREATE TABLE IF NOT EXISTS bookings (
			id UUID PRIMARY KEY,
			opportunity_id UUID NOT NULL REFERENCES opportunities (id),
			type TEXT NOT NULL,
			scheduled_at TIMESTAMPTZ NOT NULL,
			duration_min INT NOT NULL DEFAULT 30,
			outcome TEXT NOT NULL DEFAULT 'pending',
			tracking_status TEXT NOT NULL DEFAULT 'pending',
			google_event_id TEXT NOT NULL DEFAULT '',
			meet_link TEXT NOT NULL DEFAULT '',
			customer_joined BOOLEAN NOT NULL DEFAULT FALSE,
			owner_joined BOOLEAN NOT NULL DEFAULT FALSE,
			attendee_count INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS bookings_tracking_idx
			ON bookings (outcome, tracking_status, scheduled_at)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id UUID PRIMARY KEY,
			opportunity_id UUID NOT NULL REFERENCES opportunities (id),
			type TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			due_at TIMESTAMPTZ NOT NULL,
			owner_user_id UUID,
			status TEXT NOT NULL DEFAULT 'open',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS post_call_actions (
			id UUID PRIMARY KEY,
			booking_id UUID NOT NULL,
			opportunity_id UUID NOT NULL,
			action_type TEXT NOT NULL,
			reasoning TEXT NOT NULL DEFAULT '',
			suggested_stage TEXT,
			confidence DOUBLE PRECISION,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS post_call_actions_booking_idx
			ON post_call_actions (booking_id, action_type)`,
		`CREATE TABLE IF NOT EXISTS invoices (
			id UUID PRIMARY KEY,
			opportunity_id UUID NOT NULL REFERENCES opportunities (id),
			amount_pence BIGINT NOT NULL,
			deposit_pence BIGINT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			checkout_session_id TEXT NOT NULL DEFAULT '',
			checkout_url TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema bootstrap: %w", err)
		}
	}
	return nil
}
