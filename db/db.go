// Package db wraps the SQLite connection and owns schema migration, the
// same way the teacher's db package does: an embedded *sql.DB, a prefixed
// logger, and an idempotent Initialize() issuing CREATE TABLE IF NOT EXISTS
// plus additive ALTER TABLE statements.
package db

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	*sql.DB
	logger *log.Logger
}

func New(dbPath string) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("db: creating data dir: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("db: opening %s: %w", dbPath, err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("db: pinging %s: %w", dbPath, err)
	}

	// SQLite allows exactly one writer at a time; a single-instance worker
	// does its own serialization (see runloop's keyed per-user mutex), so we
	// only need to avoid the driver handing out multiple writer connections.
	sqlDB.SetMaxOpenConns(1)

	logger := log.New(os.Stdout, "db: ", log.LstdFlags|log.Lmsgprefix)
	return &DB{sqlDB, logger}, nil
}

// Initialize creates every table the collector needs if it doesn't already
// exist, and layers on any columns added since the table was first created.
func (d *DB) Initialize() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			spotify_id TEXT NOT NULL UNIQUE,
			display_name TEXT,
			email TEXT,
			country TEXT,
			product TEXT NOT NULL DEFAULT 'unknown',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS refresh_credentials (
			user_id INTEGER PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			sealed_refresh_token BLOB NOT NULL,
			access_token TEXT,
			access_token_expiry TIMESTAMP,
			scope TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS tracks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			provider_track_id TEXT UNIQUE,
			local_id TEXT UNIQUE,
			album TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL DEFAULT 0,
			source TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CHECK (provider_track_id IS NOT NULL OR local_id IS NOT NULL)
		)`,
		`CREATE TABLE IF NOT EXISTS artists (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			provider_artist_id TEXT UNIQUE,
			local_id TEXT UNIQUE,
			source TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CHECK (provider_artist_id IS NOT NULL OR local_id IS NOT NULL)
		)`,
		`CREATE TABLE IF NOT EXISTS track_artists (
			track_id INTEGER NOT NULL REFERENCES tracks(id) ON DELETE CASCADE,
			artist_id INTEGER NOT NULL REFERENCES artists(id) ON DELETE CASCADE,
			PRIMARY KEY (track_id, artist_id)
		)`,
		`CREATE TABLE IF NOT EXISTS plays (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			track_id INTEGER NOT NULL REFERENCES tracks(id) ON DELETE CASCADE,
			played_at TIMESTAMP NOT NULL,
			ms_played INTEGER NOT NULL DEFAULT 0,
			source TEXT NOT NULL,
			UNIQUE (user_id, played_at, track_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_plays_user_played_at ON plays(user_id, played_at)`,
		`CREATE TABLE IF NOT EXISTS sync_checkpoints (
			user_id INTEGER PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			status TEXT NOT NULL DEFAULT 'idle',
			initial_sync_started_at TIMESTAMP,
			initial_sync_completed_at TIMESTAMP,
			initial_sync_earliest_played_at TIMESTAMP,
			last_poll_started_at TIMESTAMP,
			last_poll_completed_at TIMESTAMP,
			last_poll_latest_played_at TIMESTAMP,
			error_message TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS job_runs (
			id TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP,
			fetched INTEGER NOT NULL DEFAULT 0,
			inserted INTEGER NOT NULL DEFAULT 0,
			skipped INTEGER NOT NULL DEFAULT 0,
			error_text TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_job_runs_user_started ON job_runs(user_id, started_at DESC)`,
		`CREATE TABLE IF NOT EXISTS import_jobs (
			id TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			status TEXT NOT NULL,
			path TEXT NOT NULL,
			size_bytes INTEGER NOT NULL DEFAULT 0,
			format TEXT NOT NULL DEFAULT 'unknown',
			records_ingested INTEGER NOT NULL DEFAULT 0,
			earliest_played_at TIMESTAMP,
			latest_played_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			error_text TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_import_jobs_user_status ON import_jobs(user_id, status)`,
	}

	for _, stmt := range statements {
		if _, err := d.Exec(stmt); err != nil {
			return fmt.Errorf("db: executing schema statement: %w", err)
		}
	}

	// Additive columns layered on after the original tables, for the
	// MusicBrainz enrichment pass. SQLite's ADD COLUMN has no IF NOT EXISTS
	// form, so a "duplicate column name" error is treated as "already
	// applied", keeping repeated Initialize calls idempotent the way
	// CREATE TABLE IF NOT EXISTS does above.
	alterations := []string{
		`ALTER TABLE tracks ADD COLUMN mbid TEXT`,
		`ALTER TABLE tracks ADD COLUMN isrc TEXT NOT NULL DEFAULT ''`,
		`ALTER TABLE tracks ADD COLUMN enriched_at TIMESTAMP`,
		`ALTER TABLE artists ADD COLUMN mbid TEXT`,
	}
	for _, stmt := range alterations {
		if _, err := d.Exec(stmt); err != nil {
			if strings.Contains(err.Error(), "duplicate column name") {
				continue
			}
			return fmt.Errorf("db: executing schema alteration: %w", err)
		}
	}
	return nil
}

// isUniqueViolation reports whether err came from a SQLite UNIQUE constraint
// failure — the signal every idempotent insert path treats as "skip".
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}
