package repository

import (
	"context"

	"github.com/foxseedlab/rokuonkun/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) repository.Repository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) CreateSession(ctx context.Context, input repository.CreateSessionInput) (*repository.SessionRow, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO sessions (session_id, guild_id, mode, label, base_dir, started_at, status)
		 VALUES ($1, $2, $3, $4, $5, $6, 'running')
		 RETURNING session_id, guild_id, mode, label, base_dir, started_at, ended_at, status, created_at`,
		input.SessionID, input.GuildID, input.Mode, input.Label, input.BaseDir, input.StartedAt)
	return scanSessionRow(row)
}

func (r *PostgresRepository) UpdateSessionCompleted(ctx context.Context, input repository.CompleteSessionInput) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE sessions SET status = 'completed', ended_at = $2 WHERE session_id = $1`,
		input.SessionID, input.EndedAt)
	return err
}

func (r *PostgresRepository) ListRunningSessions(ctx context.Context) ([]repository.SessionRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT session_id, guild_id, mode, label, base_dir, started_at, ended_at, status, created_at
		 FROM sessions WHERE status = 'running' ORDER BY started_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []repository.SessionRow
	for rows.Next() {
		s, err := scanSessionRow(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *s)
	}
	return list, rows.Err()
}

func (r *PostgresRepository) InsertTranscriptEvent(ctx context.Context, input repository.InsertTranscriptEventInput) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO transcript_events
		 (session_id, guild_id, user_id, player, "character", event_source, started_at, ended_at, text, is_noise, error_text)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		input.SessionID, input.GuildID, input.UserID, input.Player, input.Character,
		input.EventSource, input.StartedAt, input.EndedAt, input.Text, input.IsNoise, input.ErrorText)
	return err
}

func (r *PostgresRepository) ListTranscriptEventsBySessionID(ctx context.Context, sessionID string) ([]repository.TranscriptEventRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, guild_id, user_id, player, "character", event_source,
		        started_at, ended_at, text, is_noise, error_text, created_at
		 FROM transcript_events WHERE session_id = $1 ORDER BY started_at ASC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []repository.TranscriptEventRow
	for rows.Next() {
		var ev repository.TranscriptEventRow
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.GuildID, &ev.UserID, &ev.Player, &ev.Character,
			&ev.EventSource, &ev.StartedAt, &ev.EndedAt, &ev.Text, &ev.IsNoise, &ev.ErrorText, &ev.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, ev)
	}
	return list, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSessionRow(row rowScanner) (*repository.SessionRow, error) {
	var s repository.SessionRow
	if err := row.Scan(&s.SessionID, &s.GuildID, &s.Mode, &s.Label, &s.BaseDir,
		&s.StartedAt, &s.EndedAt, &s.Status, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}
