package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/chessdb/internal/view"
)

// gamesView is the snapshots row key of the game index.
const gamesView = "games"

// SnapshotMeta describes the persisted snapshot without decoding it.
type SnapshotMeta struct {
	SchemaVersion int       `json:"schema_version"`
	UptoSeq       int64     `json:"upto_seq"`
	Digest        string    `json:"digest"`
	SavedAt       time.Time `json:"saved_at"`
}

// LoadSnapshot implements engine.SnapshotStore.
//
// The payload digest is recomputed; a row whose digest does not match is
// reported as missing (ok=false) so the caller rebuilds from the log.
func (s *Store) LoadSnapshot(ctx context.Context) (view.Persisted, bool, error) {
	var (
		p       view.Persisted
		digest  string
		payload string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT schema_version, upto_seq, digest, payload
		FROM snapshots
		WHERE view = ?
	`, gamesView).Scan(&p.SchemaVersion, &p.Seq, &digest, &payload)
	if errIsNoRows(err) {
		return view.Persisted{}, false, nil
	}
	if err != nil {
		return view.Persisted{}, false, fmt.Errorf("load snapshot: %w", err)
	}

	idx, err := unmarshalIndex(payload)
	if err != nil {
		slog.Warn("discarding unreadable snapshot", "seq", p.Seq, "error", err)
		return view.Persisted{}, false, nil
	}
	if got := view.Digest(idx); got != digest {
		slog.Warn("discarding snapshot with digest mismatch",
			"seq", p.Seq,
			"stored_digest", digest,
			"computed_digest", got,
		)
		return view.Persisted{}, false, nil
	}

	p.Index = idx
	return p, true, nil
}

// SaveSnapshot implements engine.SnapshotStore. Replaces any previous
// snapshot of the game index.
func (s *Store) SaveSnapshot(ctx context.Context, p view.Persisted) error {
	payload, err := marshalIndex(p.Index)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (view, schema_version, upto_seq, digest, payload, saved_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(view) DO UPDATE SET
			schema_version = excluded.schema_version,
			upto_seq       = excluded.upto_seq,
			digest         = excluded.digest,
			payload        = excluded.payload,
			saved_at       = excluded.saved_at
	`,
		gamesView,
		p.SchemaVersion,
		p.Seq,
		view.Digest(p.Index),
		payload,
		s.now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// SnapshotInfo returns the persisted snapshot's metadata. ok is false when
// none has been saved.
func (s *Store) SnapshotInfo(ctx context.Context) (meta SnapshotMeta, ok bool, err error) {
	var savedAt int64
	err = s.db.QueryRowContext(ctx, `
		SELECT schema_version, upto_seq, digest, saved_at
		FROM snapshots
		WHERE view = ?
	`, gamesView).Scan(&meta.SchemaVersion, &meta.UptoSeq, &meta.Digest, &savedAt)
	if errIsNoRows(err) {
		return SnapshotMeta{}, false, nil
	}
	if err != nil {
		return SnapshotMeta{}, false, fmt.Errorf("snapshot info: %w", err)
	}
	meta.SavedAt = unixMilli(savedAt)
	return meta, true, nil
}

// DeleteSnapshot removes the persisted snapshot, forcing the next index
// catch-up to replay the whole log.
func (s *Store) DeleteSnapshot(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE view = ?`, gamesView); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}
