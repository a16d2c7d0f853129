// Package history keeps an append-only record of finished downloads in
// Postgres.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/reelfetch/backend/internal/download"
	"github.com/reelfetch/backend/internal/platform"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Entry is one finished download.
type Entry struct {
	DownloadID  string              `json:"downloadId"`
	URL         string              `json:"url"`
	Platform    platform.Platform   `json:"platform"`
	State       download.State      `json:"state"`
	Mode        download.Mode       `json:"mode,omitempty"`
	Filename    string              `json:"filename,omitempty"`
	Size        int64               `json:"size,omitempty"`
	ErrorKind   download.ErrorKind  `json:"errorKind,omitempty"`
	Error       string              `json:"error,omitempty"`
	Selection   *download.Selection `json:"selection,omitempty"`
	CreatedAt   time.Time           `json:"createdAt"`
	CompletedAt *time.Time          `json:"completedAt,omitempty"`
}

// DB is the history database.
type DB struct {
	*sql.DB
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{db}, nil
}

func (db *DB) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS download_history (
		download_id VARCHAR(64) PRIMARY KEY,
		url TEXT NOT NULL,
		platform VARCHAR(32) NOT NULL,
		state VARCHAR(32) NOT NULL,
		mode VARCHAR(16),
		filename TEXT,
		size_bytes BIGINT,
		error_kind VARCHAR(32),
		error_message TEXT,
		selection JSONB,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		completed_at TIMESTAMP WITH TIME ZONE
	);

	CREATE INDEX IF NOT EXISTS idx_download_history_completed_at ON download_history(completed_at DESC);
	CREATE INDEX IF NOT EXISTS idx_download_history_platform ON download_history(platform);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

// Repository reads and writes history entries.
type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Record stores a terminal snapshot. Recording the same download twice
// overwrites the earlier row.
func (r *Repository) Record(ctx context.Context, s download.Snapshot) error {
	if !s.IsTerminal() {
		return fmt.Errorf("download %s is not finished", s.ID)
	}

	sel, err := json.Marshal(s.Selection)
	if err != nil {
		return fmt.Errorf("failed to marshal selection: %w", err)
	}

	var kind, message sql.NullString
	if s.Error != nil {
		kind = sql.NullString{String: string(s.Error.Kind), Valid: true}
		message = sql.NullString{String: s.Error.Message, Valid: true}
	}

	query := `
		INSERT INTO download_history (
			download_id, url, platform, state, mode, filename, size_bytes,
			error_kind, error_message, selection, created_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (download_id) DO UPDATE SET
			state = EXCLUDED.state,
			filename = EXCLUDED.filename,
			size_bytes = EXCLUDED.size_bytes,
			error_kind = EXCLUDED.error_kind,
			error_message = EXCLUDED.error_message,
			completed_at = EXCLUDED.completed_at
	`
	_, err = r.db.ExecContext(ctx, query,
		s.ID, s.URL, string(s.Platform), string(s.State),
		nullString(string(s.Mode)), nullString(s.Filename), sql.NullInt64{Int64: s.Size, Valid: s.Size > 0},
		kind, message, sel, s.CreatedAt, s.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record download: %w", err)
	}
	return nil
}

// Recent returns the latest entries, newest first. An empty platform
// matches all platforms.
func (r *Repository) Recent(ctx context.Context, p platform.Platform, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	query := `
		SELECT download_id, url, platform, state, mode, filename, size_bytes,
			   error_kind, error_message, selection, created_at, completed_at
		FROM download_history
		WHERE ($1 = '' OR platform = $1)
		ORDER BY completed_at DESC NULLS LAST, created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, string(p), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                         Entry
			plat, state               string
			mode, filename, kind, msg sql.NullString
			size                      sql.NullInt64
			sel                       []byte
			completed                 sql.NullTime
		)
		if err := rows.Scan(&e.DownloadID, &e.URL, &plat, &state, &mode, &filename, &size,
			&kind, &msg, &sel, &e.CreatedAt, &completed); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		e.Platform = platform.Platform(plat)
		e.State = download.State(state)
		e.Mode = download.Mode(mode.String)
		e.Filename = filename.String
		e.Size = size.Int64
		e.ErrorKind = download.ErrorKind(kind.String)
		e.Error = msg.String
		if completed.Valid {
			t := completed.Time
			e.CompletedAt = &t
		}
		if len(sel) > 0 {
			var s download.Selection
			if json.Unmarshal(sel, &s) == nil {
				e.Selection = &s
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
