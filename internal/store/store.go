// Package store keeps a SQLite ledger of rewritten images.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hazyhaar/unmark/dbopen"
	"github.com/hazyhaar/unmark/event"
)

// Schema for the rewrites table.
const Schema = `
CREATE TABLE IF NOT EXISTS rewrites (
	id         TEXT PRIMARY KEY,
	page_id    TEXT NOT NULL DEFAULT '',
	page_url   TEXT NOT NULL DEFAULT '',
	old_src    TEXT NOT NULL,
	new_src    TEXT NOT NULL,
	old_token  TEXT NOT NULL,
	new_token  TEXT NOT NULL,
	secondary  INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rewrites_created ON rewrites(created_at);
CREATE INDEX IF NOT EXISTS idx_rewrites_page ON rewrites(page_id);
`

// Store records rewrite events. It satisfies sink.Sink.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return &Store{db: db}, nil
}

// New wraps an open database and applies the schema.
func New(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("store: schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Send inserts ev. Replaying the same ID is ignored.
func (s *Store) Send(ctx context.Context, ev event.Rewrite) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO rewrites (
			id, page_id, page_url, old_src, new_src,
			old_token, new_token, secondary, created_at
		) VALUES (?,?,?,?,?,?,?,?,?)`,
		ev.ID, ev.PageID, ev.PageURL, ev.OldSrc, ev.NewSrc,
		ev.OldToken, ev.NewToken, boolInt(ev.Secondary), ev.Timestamp)
	if err != nil {
		return fmt.Errorf("store: insert: %w", err)
	}
	return nil
}

// Recent returns up to limit rewrites, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]event.Rewrite, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, page_id, page_url, old_src, new_src,
		       old_token, new_token, secondary, created_at
		FROM rewrites
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var out []event.Rewrite
	for rows.Next() {
		var ev event.Rewrite
		var secondary int
		if err := rows.Scan(&ev.ID, &ev.PageID, &ev.PageURL, &ev.OldSrc, &ev.NewSrc,
			&ev.OldToken, &ev.NewToken, &secondary, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		ev.Secondary = secondary != 0
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Count returns the number of recorded rewrites.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rewrites`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
