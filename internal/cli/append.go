package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/chessdb/internal/event"
	"github.com/roach88/chessdb/internal/store"
)

// maxLineSize bounds one JSON line of append input.
const maxLineSize = 1 << 20

// AppendResult reports what an append run stored.
type AppendResult struct {
	Read       int   `json:"read"`
	Appended   int   `json:"appended"`
	Duplicates int   `json:"duplicates"`
	LastSeq    int64 `json:"last_seq"`
}

// NewAppendCommand creates the append command.
func NewAppendCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "append [file]",
		Short: "Append log entries from JSON lines",
		Long: `Append entries to the log, one JSON object per line:

  {"id": "g1", "author": "A", "content": {"type": "chess_invite", "inviting": "B", "myColor": "white"}}
  {"author": "B", "content": {"type": "chess_invite_accept", "root": "g1"}}

Entries without an id get a generated one. An entry whose id is already in
the log is skipped. Reads stdin when file is omitted or "-". All entries are
appended in one transaction: one invalid line appends nothing.

Exit codes:
  0 - Entries appended
  2 - Invalid input or database error

Examples:
  chessdb append --db ./games.db entries.jsonl
  cat entries.jsonl | chessdb append --db ./games.db`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			return runAppend(rootOpts, path, cmd)
		},
	}
	return cmd
}

func runAppend(opts *RootOptions, path string, cmd *cobra.Command) error {
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open input", err)
		}
		defer f.Close()
		r = f
	}

	entries, err := readEntries(r)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read entries", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := commandContext(cmd)
	created, err := st.AppendAll(ctx, entries)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to append entries", err)
	}
	last, err := st.LastSeq(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read last seq", err)
	}

	result := AppendResult{
		Read:       len(entries),
		Appended:   created,
		Duplicates: len(entries) - created,
		LastSeq:    last,
	}

	if opts.Format == "json" {
		return opts.formatter(cmd).Success(result)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Appended %d of %d entries (%d duplicates), log at seq %d\n",
		result.Appended, result.Read, result.Duplicates, result.LastSeq)
	return nil
}

// readEntries decodes one entry per non-blank line.
func readEntries(r io.Reader) ([]event.Entry, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	entries := []event.Entry{}
	for line := 1; scanner.Scan(); line++ {
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var e event.Entry
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&e); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if e.Author == "" {
			return nil, fmt.Errorf("line %d: %w: author is required", line, store.ErrInvalidEntry)
		}
		if len(e.Content) == 0 {
			return nil, fmt.Errorf("line %d: %w: content is required", line, store.ErrInvalidEntry)
		}
		e.Seq = 0
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
