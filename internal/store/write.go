package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/chessdb/internal/event"
)

// ErrInvalidEntry is returned for entries that can never be stored: no
// author, or content that is not a JSON document.
var ErrInvalidEntry = errors.New("invalid entry")

// Append stores an entry at the next seq and wakes Notify channels.
//
// e.Seq and e.AppendedAt are ignored and assigned by the store. An empty
// e.ID is filled from the IDGenerator. Uses ON CONFLICT(id) DO NOTHING for
// idempotency: appending an id that already exists returns the stored entry
// unchanged and created=false.
func (s *Store) Append(ctx context.Context, e event.Entry) (stored event.Entry, created bool, err error) {
	if e.Author == "" {
		return event.Entry{}, false, fmt.Errorf("append: %w: author is empty", ErrInvalidEntry)
	}
	content := strings.TrimSpace(string(e.Content))
	if content == "" || !json.Valid([]byte(content)) {
		return event.Entry{}, false, fmt.Errorf("append: %w: content is not JSON", ErrInvalidEntry)
	}
	if e.ID == "" {
		e.ID = s.ids.Generate()
	}
	at := s.now().UTC().UnixMilli()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO entries (id, author, content, appended_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, e.ID, string(e.Author), content, at)
	if err != nil {
		return event.Entry{}, false, fmt.Errorf("append: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return event.Entry{}, false, fmt.Errorf("append: %w", err)
	}
	if n == 0 {
		existing, err := s.ReadEntry(ctx, e.ID)
		if err != nil {
			return event.Entry{}, false, fmt.Errorf("append: read existing %s: %w", e.ID, err)
		}
		return existing, false, nil
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return event.Entry{}, false, fmt.Errorf("append: %w", err)
	}

	s.broadcast()

	return event.Entry{
		Seq:        seq,
		ID:         e.ID,
		Author:     e.Author,
		Content:    json.RawMessage(content),
		AppendedAt: unixMilli(at),
	}, true, nil
}

// AppendAll appends entries in order inside one transaction and wakes Notify
// channels once. Returns how many entries were new.
func (s *Store) AppendAll(ctx context.Context, entries []event.Entry) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("append all: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (id, author, content, appended_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("append all: %w", err)
	}
	defer stmt.Close()

	created := 0
	for i, e := range entries {
		content := strings.TrimSpace(string(e.Content))
		if e.Author == "" || content == "" || !json.Valid([]byte(content)) {
			return 0, fmt.Errorf("append all: entry %d: %w", i, ErrInvalidEntry)
		}
		if e.ID == "" {
			e.ID = s.ids.Generate()
		}
		res, err := stmt.ExecContext(ctx, e.ID, string(e.Author), content, s.now().UTC().UnixMilli())
		if err != nil {
			return 0, fmt.Errorf("append all: entry %d: %w", i, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			created++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("append all: commit: %w", err)
	}
	if created > 0 {
		s.broadcast()
	}
	return created, nil
}

// errIsNoRows reports whether err is sql.ErrNoRows.
func errIsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
