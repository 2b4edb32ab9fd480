package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/chessdb/internal/event"
)

// ReadAfter implements engine.Log. Returns up to limit entries with
// seq > afterSeq ordered by seq. A limit below 1 returns every remaining
// entry.
//
// Returns an empty slice (not nil) when there is nothing after afterSeq.
func (s *Store) ReadAfter(ctx context.Context, afterSeq int64, limit int) ([]event.Entry, error) {
	if limit < 1 {
		limit = -1 // SQLite: no limit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, author, content, appended_at
		FROM entries
		WHERE seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries := []event.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}

	return entries, nil
}

// ReadEntry retrieves a single entry by id.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadEntry(ctx context.Context, id string) (event.Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, id, author, content, appended_at
		FROM entries
		WHERE id = ?
	`, id)

	return scanEntry(row)
}

// LastSeq returns the highest seq in the log, or 0 when it is empty.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM entries`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}

// CountByAuthor returns the number of entries per author, for status output.
func (s *Store) CountByAuthor(ctx context.Context) (map[event.PlayerID]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT author, COUNT(*)
		FROM entries
		GROUP BY author
		ORDER BY author COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("count entries: %w", err)
	}
	defer rows.Close()

	counts := make(map[event.PlayerID]int)
	for rows.Next() {
		var author string
		var n int
		if err := rows.Scan(&author, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[event.PlayerID(author)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (event.Entry, error) {
	var (
		e       event.Entry
		author  string
		content string
		at      int64
	)
	if err := row.Scan(&e.Seq, &e.ID, &author, &content, &at); err != nil {
		if err == sql.ErrNoRows {
			return event.Entry{}, err
		}
		return event.Entry{}, fmt.Errorf("scan entry: %w", err)
	}
	e.Author = event.PlayerID(author)
	e.Content = json.RawMessage(content)
	e.AppendedAt = unixMilli(at)
	return e, nil
}

func unixMilli(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
