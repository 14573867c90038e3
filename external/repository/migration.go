package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrationStatements = []string{
	`DO $$ BEGIN CREATE TYPE session_status AS ENUM ('running', 'completed'); EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		guild_id TEXT NOT NULL,
		mode TEXT NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		base_dir TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ,
		status session_status NOT NULL DEFAULT 'running',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_running ON sessions (guild_id) WHERE status = 'running'`,
	`CREATE TABLE IF NOT EXISTS transcript_events (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
		guild_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		player TEXT NOT NULL DEFAULT '',
		"character" TEXT NOT NULL DEFAULT '',
		event_source TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ NOT NULL,
		text TEXT NOT NULL DEFAULT '',
		is_noise BOOLEAN NOT NULL DEFAULT FALSE,
		error_text TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transcript_events_session ON transcript_events (session_id, started_at)`,
}

func RunMigration(ctx context.Context, pool *pgxpool.Pool) error {
	for _, s := range migrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
