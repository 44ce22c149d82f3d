// Package audit keeps a small SQLite log of dispatch outcomes: one row per
// handled message. Conversation content is not persisted here, only routing
// metadata and outcomes.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one dispatch outcome.
type Entry struct {
	ID        int64
	Channel   string
	ChatID    string
	SenderID  string
	Route     string // text | attachment | command
	Outcome   string // replied | denied | rejected | error
	Reason    string
	LatencyMs int64
	CreatedAt time.Time
}

// Store wraps the SQLite dispatch log.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewStore(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db, logger: logger}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS dispatch_log (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		channel     TEXT NOT NULL,
		chat_id     TEXT NOT NULL,
		sender_id   TEXT NOT NULL,
		route       TEXT NOT NULL,
		outcome     TEXT NOT NULL,
		reason      TEXT,
		latency_ms  INTEGER DEFAULT 0,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_dispatch_created ON dispatch_log(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record inserts one outcome row. Failures are the caller's to log; auditing
// must never break message handling.
func (s *Store) Record(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dispatch_log (channel, chat_id, sender_id, route, outcome, reason, latency_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Channel, e.ChatID, e.SenderID, e.Route, e.Outcome, e.Reason, e.LatencyMs,
	)
	if err != nil {
		return fmt.Errorf("audit record: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit < 1 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, channel, chat_id, sender_id, route, outcome, reason, latency_ms, created_at
		 FROM dispatch_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("audit query: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var reason sql.NullString
		if err := rows.Scan(&e.ID, &e.Channel, &e.ChatID, &e.SenderID, &e.Route,
			&e.Outcome, &reason, &e.LatencyMs, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit scan: %w", err)
		}
		e.Reason = reason.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
