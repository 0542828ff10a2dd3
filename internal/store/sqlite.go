// Package store persists accepted briefs to a local SQLite database so
// runs survive process restarts and past briefs can be listed from the
// CLI.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loomworks/loom/internal/brief"
)

var ErrNotFound = errors.New("brief not found")

const schema = `
CREATE TABLE IF NOT EXISTS briefs (
	id           TEXT PRIMARY KEY,
	topic        TEXT NOT NULL DEFAULT '',
	bottom_line  TEXT NOT NULL,
	generated_at INTEGER NOT NULL,
	model        TEXT NOT NULL DEFAULT '',
	degraded     INTEGER NOT NULL DEFAULT 0,
	attempts     INTEGER NOT NULL DEFAULT 0,
	payload      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_briefs_generated_at ON briefs (generated_at DESC);
CREATE INDEX IF NOT EXISTS idx_briefs_topic ON briefs (topic);
`

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening brief store: %w", err)
	}
	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY churn under concurrent topic runs.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying brief store schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Save persists one accepted brief. The full brief is stored as JSON
// alongside the columns used for listing.
func (s *Store) Save(ctx context.Context, b *brief.Brief) error {
	payload, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encoding brief: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO briefs
			(id, topic, bottom_line, generated_at, model, degraded, attempts, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID.String(),
		b.Topic,
		b.BottomLine,
		b.Metadata.GeneratedAt.Unix(),
		b.Metadata.Model,
		boolToInt(b.Metadata.Degraded),
		len(b.Metadata.Attempts),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("saving brief %s: %w", b.ID, err)
	}
	return nil
}

// Get loads one brief by its ID.
func (s *Store) Get(ctx context.Context, id string) (*brief.Brief, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM briefs WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading brief %s: %w", id, err)
	}

	var b brief.Brief
	if err := json.Unmarshal([]byte(payload), &b); err != nil {
		return nil, fmt.Errorf("decoding brief %s: %w", id, err)
	}
	return &b, nil
}

// Listing is one row of the brief index.
type Listing struct {
	ID          string
	Topic       string
	BottomLine  string
	GeneratedAt time.Time
	Model       string
	Degraded    bool
	Attempts    int
}

// Recent returns the newest briefs, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Listing, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, topic, bottom_line, generated_at, model, degraded, attempts
		FROM briefs ORDER BY generated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing briefs: %w", err)
	}
	defer rows.Close()

	var out []Listing
	for rows.Next() {
		var l Listing
		var ts int64
		var degraded int
		if err := rows.Scan(&l.ID, &l.Topic, &l.BottomLine, &ts, &l.Model, &degraded, &l.Attempts); err != nil {
			return nil, fmt.Errorf("scanning brief row: %w", err)
		}
		l.GeneratedAt = time.Unix(ts, 0).UTC()
		l.Degraded = degraded != 0
		out = append(out, l)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
