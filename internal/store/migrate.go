package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS conversations (
		id              TEXT PRIMARY KEY,
		patient_id      TEXT NOT NULL,
		version         BIGINT NOT NULL DEFAULT 0,
		last_sequence   BIGINT NOT NULL DEFAULT 0,
		last_message_at TIMESTAMPTZ NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_patient ON conversations (patient_id)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id               TEXT PRIMARY KEY,
		conversation_id  TEXT NOT NULL REFERENCES conversations(id),
		sender           TEXT NOT NULL,
		content          TEXT NOT NULL,
		content_redacted TEXT NOT NULL DEFAULT '',
		sequence         BIGINT NOT NULL,
		risk_level       TEXT,
		risk_reason      TEXT,
		confidence_score INT,
		confidence_level TEXT,
		verified         BOOLEAN NOT NULL DEFAULT FALSE,
		created_at       TIMESTAMPTZ NOT NULL,
		UNIQUE (conversation_id, sequence)
	)`,
	`CREATE TABLE IF NOT EXISTS profile_items (
		conversation_id   TEXT NOT NULL REFERENCES conversations(id),
		category          TEXT NOT NULL,
		value             TEXT NOT NULL,
		status            TEXT NOT NULL,
		source_message_id TEXT NOT NULL,
		created_at        TIMESTAMPTZ NOT NULL,
		updated_at        TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (conversation_id, category, value)
	)`,
	`CREATE TABLE IF NOT EXISTS escalations (
		id                 TEXT PRIMARY KEY,
		conversation_id    TEXT NOT NULL REFERENCES conversations(id),
		trigger_message_id TEXT NOT NULL,
		status             TEXT NOT NULL,
		triage_summary     TEXT NOT NULL DEFAULT '',
		profile_snapshot   JSONB,
		resolution_reply   TEXT NOT NULL DEFAULT '',
		resolved_by        TEXT NOT NULL DEFAULT '',
		created_at         TIMESTAMPTZ NOT NULL,
		resolved_at        TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_escalations_pending
		ON escalations (conversation_id) WHERE status = 'PENDING'`,
}

// Migrate applies the schema idempotently at startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
