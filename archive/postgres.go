package archive

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Open connects to Postgres and applies pending migrations.
func Open(databaseURL string) (*sql.DB, error) {
	if err := runMigrations(databaseURL); err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("archive: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: ping: %w", err)
	}
	return db, nil
}

func runMigrations(databaseURL string) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("archive: migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return fmt.Errorf("archive: migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("archive: migrate: %w", err)
	}
	return nil
}

// Postgres persists session records in the chat_sessions table.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) SessionStarted(ctx context.Context, s StartedSession) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO chat_sessions (session_id, caretaker_id, helpseeker_id, started_at, duration_seconds)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id) DO NOTHING`,
		s.SessionID, s.Caretaker, s.Helpseeker, s.StartedAt, int(s.Duration.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("archive: session started: %w", err)
	}
	return nil
}

func (p *Postgres) SessionEnded(ctx context.Context, sessionID, reason string, endedAt time.Time) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE chat_sessions
		SET ended_at = $2, end_reason = $3
		WHERE session_id = $1 AND ended_at IS NULL`,
		sessionID, endedAt, reason,
	)
	if err != nil {
		return fmt.Errorf("archive: session ended: %w", err)
	}
	return nil
}
