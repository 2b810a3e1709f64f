// Package history keeps a log of calls made from the command line in a
// SQLite database.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"

	"github.com/abdul-hamid-achik/ws/packages/ws"
)

const schema = `CREATE TABLE IF NOT EXISTS calls (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	at          INTEGER NOT NULL,
	method      TEXT NOT NULL,
	url         TEXT NOT NULL,
	ok          INTEGER NOT NULL,
	kind        TEXT NOT NULL DEFAULT '',
	status      INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT ''
)`

// Entry is one recorded call
type Entry struct {
	ID       int64
	Time     time.Time
	Method   string
	URL      string
	OK       bool
	Kind     string // ws error kind of a failed call
	Status   int    // HTTP status of a failed call, when one was received
	Duration time.Duration
	Error    string
}

// EntryFor describes the outcome of a call
func EntryFor(method, url string, err error, d time.Duration) Entry {
	e := Entry{
		Time:     time.Now(),
		Method:   method,
		URL:      url,
		OK:       err == nil,
		Duration: d,
	}
	if err != nil {
		e.Error = err.Error()
		e.Status = ws.StatusCode(err)
		var wsErr *ws.Error
		if errors.As(err, &wsErr) {
			e.Kind = wsErr.Kind.String()
		}
	}
	return e
}

// Store is a call log backed by a SQLite file
type Store struct {
	db           *sql.DB
	queryTimeout time.Duration
}

// Open opens the database at path, creating it and its directory when missing
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create history table: %w", err)
	}

	return &Store{db: db, queryTimeout: 5 * time.Second}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record appends e and returns its id
func (s *Store) Record(ctx context.Context, e Entry) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO calls (at, method, url, ok, kind, status, duration_ms, error) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Time.UnixMilli(), e.Method, e.URL, e.OK, e.Kind, e.Status, e.Duration.Milliseconds(), e.Error,
	)
	if err != nil {
		return 0, fmt.Errorf("record failed: %w", err)
	}
	return res.LastInsertId()
}

// Recent returns up to limit entries, newest first. failedOnly keeps only
// failed calls.
func (s *Store) Recent(ctx context.Context, limit int, failedOnly bool) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	query := `SELECT id, at, method, url, ok, kind, status, duration_ms, error FROM calls`
	if failedOnly {
		query += ` WHERE ok = 0`
	}
	query += ` ORDER BY id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e          Entry
			at, millis int64
		)
		if err := rows.Scan(&e.ID, &at, &e.Method, &e.URL, &e.OK, &e.Kind, &e.Status, &millis, &e.Error); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		e.Time = time.UnixMilli(at)
		e.Duration = time.Duration(millis) * time.Millisecond
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return entries, nil
}

// Clear deletes every entry and returns how many were removed
func (s *Store) Clear(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM calls`)
	if err != nil {
		return 0, fmt.Errorf("clear failed: %w", err)
	}
	return res.RowsAffected()
}
