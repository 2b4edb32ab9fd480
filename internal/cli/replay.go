package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/chessdb/internal/engine"
	"github.com/roach88/chessdb/internal/event"
	"github.com/roach88/chessdb/internal/store"
	"github.com/roach88/chessdb/internal/view"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
}

// SnapshotCheck compares the persisted snapshot with a fresh fold of the
// same log prefix.
type SnapshotCheck struct {
	Seq           int64  `json:"seq"`
	SchemaVersion int    `json:"schema_version"`
	Skipped       string `json:"skipped,omitempty"`
	Matches       bool   `json:"matches"`
}

// ReplayResult holds the replay result.
type ReplayResult struct {
	Seq           int64          `json:"seq"`
	Games         int            `json:"games"`
	Digest        string         `json:"digest"`
	Deterministic bool           `json:"deterministic"`
	Snapshot      *SnapshotCheck `json:"snapshot,omitempty"`
}

// OK reports whether every check passed.
func (r ReplayResult) OK() bool {
	return r.Deterministic && (r.Snapshot == nil || r.Snapshot.Skipped != "" || r.Snapshot.Matches)
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Refold the log and verify determinism",
		Long: `Fold the whole entry log twice from scratch and verify both folds agree.

If the database holds a persisted snapshot with the current schema version,
it is compared with a fresh fold of the log prefix it covers. Timestamps are
excluded from every comparison. The persisted snapshot is never modified.

Exit codes:
  0 - Folds agree and the snapshot matches
  1 - Folds disagree or the snapshot does not match
  2 - Command error (database not found, etc.)

Examples:
  chessdb replay --db ./games.db
  chessdb replay --db ./games.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	last, err := st.LastSeq(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read log", err)
	}

	first, err := foldPrefix(ctx, st, last, opts.PageSize)
	if err != nil {
		return WrapExitError(ExitCommandError, "first replay failed", err)
	}
	second, err := foldPrefix(ctx, st, last, opts.PageSize)
	if err != nil {
		return WrapExitError(ExitCommandError, "second replay failed", err)
	}

	digest := view.Digest(first.Index, view.WithoutTimestamps())
	result := ReplayResult{
		Seq:           first.Seq,
		Games:         len(first.Index),
		Digest:        digest,
		Deterministic: digest == view.Digest(second.Index, view.WithoutTimestamps()),
	}

	check, err := checkPersisted(ctx, st, opts.PageSize)
	if err != nil {
		return WrapExitError(ExitCommandError, "snapshot check failed", err)
	}
	result.Snapshot = check

	if opts.Format == "json" {
		return outputReplayJSON(cmd, result)
	}
	return outputReplayText(cmd, result)
}

// checkPersisted returns nil when no snapshot is stored.
func checkPersisted(ctx context.Context, st *store.Store, pageSize int) (*SnapshotCheck, error) {
	p, ok, err := st.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	check := &SnapshotCheck{Seq: p.Seq, SchemaVersion: p.SchemaVersion}
	if p.SchemaVersion != view.SchemaVersion {
		check.Skipped = fmt.Sprintf("schema version %d, current is %d", p.SchemaVersion, view.SchemaVersion)
		return check, nil
	}

	fresh, err := foldPrefix(ctx, st, p.Seq, pageSize)
	if err != nil {
		return nil, err
	}
	check.Matches = view.Digest(fresh.Index, view.WithoutTimestamps()) == view.Digest(p.Index, view.WithoutTimestamps())
	if !check.Matches {
		slog.Warn("persisted snapshot differs from replay", "seq", p.Seq)
	}
	return check, nil
}

// foldPrefix folds entries up to and including seq upto into a fresh index
// that persists only in memory.
func foldPrefix(ctx context.Context, st *store.Store, upto int64, pageSize int) (engine.Snapshot, error) {
	idx, err := engine.New(prefixLog{log: st, upto: upto},
		engine.WithSnapshotStore(&engine.MemorySnapshots{}),
		engine.WithPageSize(pageSize),
	)
	if err != nil {
		return engine.Snapshot{}, err
	}
	return idx.Snapshot(ctx)
}

// prefixLog hides entries after upto. It never signals new entries.
type prefixLog struct {
	log  engine.Log
	upto int64
}

func (p prefixLog) ReadAfter(ctx context.Context, afterSeq int64, limit int) ([]event.Entry, error) {
	if afterSeq >= p.upto {
		return []event.Entry{}, nil
	}
	entries, err := p.log.ReadAfter(ctx, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	for i, e := range entries {
		if e.Seq > p.upto {
			return entries[:i], nil
		}
	}
	return entries, nil
}

func (p prefixLog) Notify() (<-chan struct{}, func()) {
	return make(chan struct{}), func() {}
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(cmd *cobra.Command, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	if !result.OK() {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    CodeCheckFailed,
			Message: replayFailure(result),
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if !result.OK() {
		return reportedFailure(replayFailure(result))
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Replay Summary: %d game(s) through seq %d\n", result.Games, result.Seq)
	fmt.Fprintf(w, "  Digest: %s\n", result.Digest)
	if result.Deterministic {
		fmt.Fprintln(w, "✓ Two folds agree")
	} else {
		fmt.Fprintln(w, "✗ Two folds disagree")
	}

	switch s := result.Snapshot; {
	case s == nil:
		fmt.Fprintln(w, "  No persisted snapshot")
	case s.Skipped != "":
		fmt.Fprintf(w, "  Persisted snapshot skipped: %s\n", s.Skipped)
	case s.Matches:
		fmt.Fprintf(w, "✓ Persisted snapshot at seq %d matches\n", s.Seq)
	default:
		fmt.Fprintf(w, "✗ Persisted snapshot at seq %d does not match\n", s.Seq)
	}

	if !result.OK() {
		return NewExitError(ExitFailure, replayFailure(result))
	}
	return nil
}

func replayFailure(result ReplayResult) string {
	if !result.Deterministic {
		return "determinism verification failed"
	}
	return "persisted snapshot does not match replay"
}
