package archive

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT    NOT NULL,
	room_id     INTEGER NOT NULL,
	cmd         TEXT    NOT NULL,
	received_at INTEGER NOT NULL,
	raw         TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS events_room_time ON events (room_id, received_at);
`

// SQLiteSink writes records to the events table of a SQLite database.
type SQLiteSink struct {
	db *sql.DB
}

var _ Sink = (*SQLiteSink)(nil)

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLiteSink, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("archive: sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive: ping sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive: create schema: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

// Name returns "sqlite".
func (s *SQLiteSink) Name() string { return "sqlite" }

// Write inserts records in one transaction.
func (s *SQLiteSink) Write(ctx context.Context, records []Record) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("archive: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (session_id, room_id, cmd, received_at, raw) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("archive: prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err = stmt.ExecContext(ctx, r.SessionID, r.RoomID, r.Cmd, r.ReceivedAt.UTC().UnixMilli(), string(r.Raw)); err != nil {
			return fmt.Errorf("archive: insert: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("archive: commit: %w", err)
	}
	return nil
}

// Recent returns up to limit records of roomID, newest first.
func (s *SQLiteSink) Recent(ctx context.Context, roomID int64, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, room_id, cmd, received_at, raw FROM events
		 WHERE room_id = ? ORDER BY received_at DESC, id DESC LIMIT ?`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("archive: query: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r   Record
			ms  int64
			raw string
		)
		if err := rows.Scan(&r.SessionID, &r.RoomID, &r.Cmd, &ms, &raw); err != nil {
			return nil, fmt.Errorf("archive: scan: %w", err)
		}
		r.ReceivedAt = time.UnixMilli(ms).UTC()
		r.Raw = []byte(raw)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
