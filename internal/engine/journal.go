// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ManuGH/playerd/internal/persistence/sqlite"
)

// JournalEntry records one spawned worker until it is terminated.
type JournalEntry struct {
	PID        int
	SessionKey string
	MediaType  MediaType
	StartedAt  time.Time
}

// Journal persists the set of spawned workers so a restarted daemon can
// reap the previous instance's orphans.
type Journal interface {
	Record(ctx context.Context, e JournalEntry) error
	Remove(ctx context.Context, pid int) error
	List(ctx context.Context) ([]JournalEntry, error)
}

var journalSchema = []string{
	`CREATE TABLE IF NOT EXISTS workers (
		pid         INTEGER PRIMARY KEY,
		session_key TEXT    NOT NULL DEFAULT '',
		media_type  TEXT    NOT NULL,
		started_at  INTEGER NOT NULL
	)`,
}

// SQLiteJournal is a Journal backed by a local SQLite file.
type SQLiteJournal struct {
	db *sql.DB
}

// OpenJournal opens (and creates) the journal at path.
func OpenJournal(ctx context.Context, path string) (*SQLiteJournal, error) {
	db, err := sqlite.Open(path, sqlite.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("open worker journal: %w", err)
	}
	if err := sqlite.Migrate(ctx, db, journalSchema...); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate worker journal: %w", err)
	}
	return &SQLiteJournal{db: db}, nil
}

// Record inserts or replaces the entry for e.PID.
func (j *SQLiteJournal) Record(ctx context.Context, e JournalEntry) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO workers (pid, session_key, media_type, started_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(pid) DO UPDATE SET session_key = excluded.session_key, media_type = excluded.media_type, started_at = excluded.started_at`,
		e.PID, e.SessionKey, string(e.MediaType), e.StartedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("journal record pid %d: %w", e.PID, err)
	}
	return nil
}

// Remove deletes the entry for pid. Unknown pids are not an error.
func (j *SQLiteJournal) Remove(ctx context.Context, pid int) error {
	if _, err := j.db.ExecContext(ctx, `DELETE FROM workers WHERE pid = ?`, pid); err != nil {
		return fmt.Errorf("journal remove pid %d: %w", pid, err)
	}
	return nil
}

// List returns all entries ordered by start time.
func (j *SQLiteJournal) List(ctx context.Context) ([]JournalEntry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT pid, session_key, media_type, started_at FROM workers ORDER BY started_at, pid`)
	if err != nil {
		return nil, fmt.Errorf("journal list: %w", err)
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var (
			e       JournalEntry
			mt      string
			started int64
		)
		if err := rows.Scan(&e.PID, &e.SessionKey, &mt, &started); err != nil {
			return nil, fmt.Errorf("journal scan: %w", err)
		}
		e.MediaType = MediaType(mt)
		e.StartedAt = time.UnixMilli(started)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Ping checks the database handle is usable.
func (j *SQLiteJournal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// Close releases the database handle.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
