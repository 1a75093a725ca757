// Package store provides SQLite-based session history for voiced.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"voiced/internal/session"
)

// Schema for the voiced history store.
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id               TEXT PRIMARY KEY,
    started_at_ns    INTEGER NOT NULL,
    active_ms        INTEGER NOT NULL,
    manual_pause_ms  INTEGER NOT NULL,
    timeout_pause_ms INTEGER NOT NULL,
    auto_pause_ms    INTEGER NOT NULL,
    extensions       INTEGER NOT NULL,
    outcome          TEXT NOT NULL,
    chars            INTEGER NOT NULL,
    alt_chord        INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at_ns);
CREATE INDEX IF NOT EXISTS idx_sessions_outcome ON sessions(outcome);
`

// Store represents the SQLite session history.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at the given path and applies the
// schema.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record persists one finished session. It implements
// session.HistoryRecorder.
func (s *Store) Record(rec session.Record) error {
	altChord := 0
	if rec.AltChord {
		altChord = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO sessions (id, started_at_ns, active_ms, manual_pause_ms, timeout_pause_ms, auto_pause_ms, extensions, outcome, chars, alt_chord)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.StartedAt.UnixNano(),
		rec.Active.Milliseconds(),
		rec.ManualPause.Milliseconds(),
		rec.TimeoutPause.Milliseconds(),
		rec.AutoPause.Milliseconds(),
		rec.Extensions,
		string(rec.Outcome),
		rec.Chars,
		altChord,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// List returns the most recent sessions, newest first.
func (s *Store) List(limit int) ([]session.Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, started_at_ns, active_ms, manual_pause_ms, timeout_pause_ms, auto_pause_ms, extensions, outcome, chars, alt_chord
		FROM sessions ORDER BY started_at_ns DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []session.Record
	for rows.Next() {
		var rec session.Record
		var startedNs, activeMs, manualMs, timeoutMs, autoMs int64
		var outcome string
		var altChord int
		if err := rows.Scan(&rec.ID, &startedNs, &activeMs, &manualMs, &timeoutMs, &autoMs, &rec.Extensions, &outcome, &rec.Chars, &altChord); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		rec.StartedAt = time.Unix(0, startedNs)
		rec.Active = time.Duration(activeMs) * time.Millisecond
		rec.ManualPause = time.Duration(manualMs) * time.Millisecond
		rec.TimeoutPause = time.Duration(timeoutMs) * time.Millisecond
		rec.AutoPause = time.Duration(autoMs) * time.Millisecond
		rec.Outcome = session.Outcome(outcome)
		rec.AltChord = altChord != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Summary aggregates totals across all stored sessions.
type Summary struct {
	Sessions    int
	TotalActive time.Duration
	TotalChars  int
	Pasted      int
}

// Summarize computes totals for the history subcommand.
func (s *Store) Summarize() (Summary, error) {
	var sum Summary
	var activeMs, chars, pasted sql.NullInt64
	err := s.db.QueryRow(`
		SELECT COUNT(*), SUM(active_ms), SUM(chars),
		       SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END)
		FROM sessions`, string(session.OutcomePasted)).
		Scan(&sum.Sessions, &activeMs, &chars, &pasted)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize sessions: %w", err)
	}
	sum.TotalActive = time.Duration(activeMs.Int64) * time.Millisecond
	sum.TotalChars = int(chars.Int64)
	sum.Pasted = int(pasted.Int64)
	return sum, nil
}
