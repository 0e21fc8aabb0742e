// Package catalog indexes finished session logs in a local SQLite database
// so they can be listed and tracked through upload.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/teslashibe/gazelog/pkg/replay"
	"github.com/teslashibe/gazelog/pkg/sessionlog"
)

// ErrNotFound is returned by Get for paths that were never recorded.
var ErrNotFound = errors.New("session not in catalog")

const ddl = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA busy_timeout = 5000;

CREATE TABLE IF NOT EXISTS sessions (
    path        TEXT PRIMARY KEY,
    serial      INTEGER NOT NULL DEFAULT 0,
    session_id  TEXT NOT NULL DEFAULT '',
    header      TEXT NOT NULL DEFAULT '',
    started_at  TEXT NOT NULL DEFAULT '',
    ended_at    TEXT NOT NULL DEFAULT '',
    rows        INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    reason      TEXT NOT NULL DEFAULT '',
    uploaded_to TEXT NOT NULL DEFAULT '',
    uploaded_at TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS sessions_started ON sessions(started_at);
`

const columns = "path, serial, session_id, header, started_at, ended_at, rows, duration_ms, reason, uploaded_to, uploaded_at"

// Entry is one catalogued session log.
type Entry struct {
	Path       string        `json:"path"`
	Serial     int           `json:"serial"`
	SessionID  string        `json:"session_id,omitempty"`
	Header     []string      `json:"header"`
	StartedAt  time.Time     `json:"started_at"`
	EndedAt    time.Time     `json:"ended_at"`
	Rows       int           `json:"rows"`
	Duration   time.Duration `json:"duration"`
	Reason     string        `json:"reason,omitempty"`
	UploadedTo string        `json:"uploaded_to,omitempty"`
	UploadedAt time.Time     `json:"uploaded_at,omitempty"`
}

// Incomplete reports whether the session ended abnormally.
func (e Entry) Incomplete() bool {
	return e.Reason != ""
}

// Uploaded reports whether the log has been delivered somewhere.
func (e Entry) Uploaded() bool {
	return e.UploadedTo != ""
}

// FromResult converts a finished session into a catalog entry.
func FromResult(r sessionlog.Result) Entry {
	return Entry{
		Path:      r.Path,
		Serial:    r.Serial,
		SessionID: r.SessionID,
		Header:    r.Header,
		StartedAt: r.StartedAt,
		EndedAt:   r.EndedAt,
		Rows:      r.Rows,
		Duration:  r.Duration,
		Reason:    r.Reason,
	}
}

// FromLog builds an entry for a log found on disk. The start time comes
// from the file name when it parses, otherwise from the file's mtime.
func FromLog(l *replay.Log, modTime time.Time) Entry {
	name := filepath.Base(l.Path)
	serial, _ := sessionlog.ParseSerial(name)
	started := modTime.Add(-l.Duration())
	if ts, ok := sessionlog.ParseTimestamp(name); ok {
		started = ts
	}
	return Entry{
		Path:      l.Path,
		Serial:    serial,
		Header:    l.Header,
		StartedAt: started,
		EndedAt:   started.Add(l.Duration()),
		Rows:      len(l.Rows),
		Duration:  l.Duration(),
		Reason:    l.Reason,
	}
}

// Catalog is a SQLite-backed session index.
type Catalog struct {
	db *sql.DB
}

// Open opens or creates the catalog at path.
func Open(path string) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create catalog dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	// One writer keeps SQLite's locking out of the way of the upload worker.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("init catalog schema: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Record inserts or replaces the entry for e.Path. Upload state already
// stored for the path is kept.
func (c *Catalog) Record(ctx context.Context, e Entry) error {
	if e.Path == "" {
		return fmt.Errorf("record session: empty path")
	}
	_, err := c.db.ExecContext(ctx, `
INSERT INTO sessions (path, serial, session_id, header, started_at, ended_at, rows, duration_ms, reason)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(path) DO UPDATE SET
    serial = excluded.serial,
    session_id = excluded.session_id,
    header = excluded.header,
    started_at = excluded.started_at,
    ended_at = excluded.ended_at,
    rows = excluded.rows,
    duration_ms = excluded.duration_ms,
    reason = excluded.reason`,
		e.Path, e.Serial, e.SessionID, strings.Join(e.Header, "\t"),
		formatTime(e.StartedAt), formatTime(e.EndedAt),
		e.Rows, e.Duration.Milliseconds(), e.Reason,
	)
	if err != nil {
		return fmt.Errorf("record session %s: %w", e.Path, err)
	}
	return nil
}

// RecordResult records a finished session. Its signature fits Logger.OnEnd
// once bound to a context.
func (c *Catalog) RecordResult(ctx context.Context, r sessionlog.Result) error {
	return c.Record(ctx, FromResult(r))
}

// MarkUploaded records where a log was delivered.
func (c *Catalog) MarkUploaded(ctx context.Context, path, location string, at time.Time) error {
	res, err := c.db.ExecContext(ctx,
		"UPDATE sessions SET uploaded_to = ?, uploaded_at = ? WHERE path = ?",
		location, formatTime(at), path,
	)
	if err != nil {
		return fmt.Errorf("mark uploaded %s: %w", path, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return nil
}

// Get returns the entry for path.
func (c *Catalog) Get(ctx context.Context, path string) (Entry, error) {
	row := c.db.QueryRowContext(ctx, "SELECT "+columns+" FROM sessions WHERE path = ?", path)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return e, err
}

// List returns up to limit entries, newest first. A non-positive limit
// returns everything.
func (c *Catalog) List(ctx context.Context, limit int) ([]Entry, error) {
	q := "SELECT " + columns + " FROM sessions ORDER BY started_at DESC, serial DESC"
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	return c.query(ctx, q, args...)
}

// Pending returns entries not yet uploaded, oldest first.
func (c *Catalog) Pending(ctx context.Context) ([]Entry, error) {
	return c.query(ctx, "SELECT "+columns+" FROM sessions WHERE uploaded_to = '' ORDER BY started_at ASC, serial ASC")
}

// Count returns the number of catalogued sessions.
func (c *Catalog) Count(ctx context.Context) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&n)
	return n, err
}

// Scan loads every log in dir and records it. Files that fail to parse are
// skipped and returned joined in the error.
func (c *Catalog) Scan(ctx context.Context, dir string) (int, error) {
	files, err := sessionlog.ListFiles(dir)
	if err != nil {
		return 0, err
	}

	var errs []error
	n := 0
	for _, path := range files {
		l, err := replay.Load(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := c.Record(ctx, FromLog(l, info.ModTime())); err != nil {
			return n, err
		}
		n++
	}
	return n, errors.Join(errs...)
}

func (c *Catalog) query(ctx context.Context, q string, args ...any) ([]Entry, error) {
	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e                             Entry
		header, started, ended, upAt string
		durMS                         int64
	)
	err := s.Scan(&e.Path, &e.Serial, &e.SessionID, &header, &started, &ended,
		&e.Rows, &durMS, &e.Reason, &e.UploadedTo, &upAt)
	if err != nil {
		return Entry{}, err
	}
	if header != "" {
		e.Header = strings.Split(header, "\t")
	}
	e.StartedAt = parseTime(started)
	e.EndedAt = parseTime(ended)
	e.UploadedAt = parseTime(upAt)
	e.Duration = time.Duration(durMS) * time.Millisecond
	return e, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
