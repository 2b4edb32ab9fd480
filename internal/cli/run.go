package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/chessdb/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Poll time.Duration
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Keep the index snapshot current",
		Long: `Tail the entry log and keep the persisted index snapshot current.

The database is created if it doesn't exist. Entries appended by other
processes are noticed every --poll interval. The tail runs until interrupted.

Example:
  chessdb run --db ./games.db
  chessdb run --db /tmp/test.db --poll 250ms --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(opts, cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Poll, "poll", time.Second, "interval for noticing appends by other processes")

	return cmd
}

func runIndex(opts *RunOptions, cmd *cobra.Command) error {
	if opts.Poll <= 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid poll interval %s: must be positive", opts.Poll))
	}

	sess, err := openSession(opts.RootOptions, store.WithPollInterval(opts.Poll))
	if err != nil {
		return err
	}
	defer sess.Close()
	slog.Info("database ready", "path", opts.Database)

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintln(cmd.OutOrStdout(), "Index running. Following the log...")
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	err = sess.index.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "index error", err)
	}

	slog.Info("index stopped gracefully", "snapshots_published", sess.index.Published())
	return nil
}
