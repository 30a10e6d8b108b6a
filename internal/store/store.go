// Package store provides a SQLite-backed store for pending clarification
// rounds. When slot extraction cannot complete a creation request, the
// partial slots are parked here keyed by session so the user's follow-up
// message can fill exactly the missing fields. One pending round per session
// survives server restarts; a new creation request replaces it.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/calai/calai-go/internal/slots"
)

// Pending is a parked clarification round.
type Pending struct {
	// ID is a server-generated identifier for the round.
	ID string
	// Session identifies the conversation the round belongs to.
	Session string
	// Query is the original creation request.
	Query string
	// Slots holds the fields extracted so far.
	Slots slots.SlotSet
	// Missing lists the field names still needed.
	Missing []string
	// CreatedAt is when the round was parked.
	CreatedAt time.Time
}

// ClarificationStore persists at most one pending round per session.
// Implementations must be safe for concurrent use.
type ClarificationStore interface {
	// Put parks a round for the session, replacing any existing one.
	Put(ctx context.Context, p Pending) error
	// Take returns and removes the session's pending round, or nil when the
	// session has none.
	Take(ctx context.Context, session string) (*Pending, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a ClarificationStore backed by a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// DefaultDBPath returns the default path for the clarification database.
// It resolves to ~/.calai/pending.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".calai")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "pending.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS pending_rounds (
    session      TEXT    PRIMARY KEY,
    id           TEXT    NOT NULL,
    query        TEXT    NOT NULL,
    slots        TEXT    NOT NULL,  -- JSON SlotSet
    missing      TEXT    NOT NULL,  -- JSON array of field names
    created_at   INTEGER NOT NULL   -- Unix timestamp (seconds)
);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Put parks a round for the session, replacing any existing one.
func (s *SQLiteStore) Put(ctx context.Context, p Pending) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	slotsJSON, err := json.Marshal(p.Slots)
	if err != nil {
		return fmt.Errorf("store: marshal slots: %w", err)
	}
	missingJSON, err := json.Marshal(p.Missing)
	if err != nil {
		return fmt.Errorf("store: marshal missing: %w", err)
	}

	const q = `
INSERT INTO pending_rounds (session, id, query, slots, missing, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(session) DO UPDATE SET
    id = excluded.id, query = excluded.query, slots = excluded.slots,
    missing = excluded.missing, created_at = excluded.created_at`
	if _, err := s.db.ExecContext(ctx, q, p.Session, p.ID, p.Query, string(slotsJSON), string(missingJSON), time.Now().Unix()); err != nil {
		return fmt.Errorf("store: put: %w", err)
	}
	return nil
}

// Take returns and removes the session's pending round, or nil when the
// session has none.
func (s *SQLiteStore) Take(ctx context.Context, session string) (*Pending, error) {
	const q = `SELECT id, query, slots, missing, created_at FROM pending_rounds WHERE session = ?`

	var p Pending
	var slotsJSON, missingJSON string
	var ts int64
	err := s.db.QueryRowContext(ctx, q, session).Scan(&p.ID, &p.Query, &slotsJSON, &missingJSON, &ts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: take: %w", err)
	}
	p.Session = session
	p.CreatedAt = time.Unix(ts, 0)
	if err := json.Unmarshal([]byte(slotsJSON), &p.Slots); err != nil {
		return nil, fmt.Errorf("store: unmarshal slots: %w", err)
	}
	if err := json.Unmarshal([]byte(missingJSON), &p.Missing); err != nil {
		return nil, fmt.Errorf("store: unmarshal missing: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_rounds WHERE session = ?`, session); err != nil {
		return nil, fmt.Errorf("store: take delete: %w", err)
	}
	return &p, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
