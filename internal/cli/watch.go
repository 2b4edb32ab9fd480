package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/chessdb/internal/event"
	"github.com/roach88/chessdb/internal/service"
	"github.com/roach88/chessdb/internal/store"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Poll  time.Duration // how often to look for entries appended by other processes
	Count int           // stop after this many results; 0 means until interrupted
}

// NewWatchCommand creates the watch command and its subcommands.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print a player's game list whenever it changes",
		Long: `Follow the log and print a game id list each time it changes.

The current list is printed first. Later lists are printed only when the set
of ids differs from the previous one. Text output is one space-separated line
per list ("-" for none); JSON output is one array per line.

Examples:
  chessdb watch agreed A --db ./games.db
  chessdb watch observable A --poll 2s --format json`,
	}

	cmd.PersistentFlags().DurationVar(&opts.Poll, "poll", 500*time.Millisecond, "interval for noticing appends by other processes")
	cmd.PersistentFlags().IntVar(&opts.Count, "count", 0, "exit after printing this many lists")

	cmd.AddCommand(
		watchCommand(opts, "agreed", "Started games the player is in", (*service.Service).WatchAgreedToPlay),
		watchCommand(opts, "observable", "Started games between two other players", (*service.Service).WatchObservable),
	)
	return cmd
}

func watchCommand(
	opts *WatchOptions,
	name, short string,
	open func(*service.Service, context.Context, event.PlayerID) (*service.IDStream, error),
) *cobra.Command {
	return &cobra.Command{
		Use:           name + " <player>",
		Short:         short,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd, func(ctx context.Context, svc *service.Service) (*service.IDStream, error) {
				return open(svc, ctx, event.PlayerID(args[0]))
			})
		},
	}
}

func runWatch(
	opts *WatchOptions,
	cmd *cobra.Command,
	open func(context.Context, *service.Service) (*service.IDStream, error),
) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sess, err := openSession(opts.RootOptions, store.WithPollInterval(opts.Poll))
	if err != nil {
		return err
	}
	defer sess.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := sess.index.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		s, err := open(gctx, sess.svc)
		if err != nil {
			return queryError(err)
		}
		defer s.Close()

		printed := 0
		for ids, err := range s.All(gctx) {
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return queryError(err)
			}
			if err := printWatchLine(cmd, opts.Format, ids); err != nil {
				return err
			}
			printed++
			if opts.Count > 0 && printed >= opts.Count {
				slog.Debug("watch count reached", "count", printed)
				cancel()
				return nil
			}
		}
		return nil
	})

	return g.Wait()
}

func printWatchLine(cmd *cobra.Command, format string, ids []event.GameID) error {
	w := cmd.OutOrStdout()
	if format == "json" {
		if ids == nil {
			ids = []event.GameID{}
		}
		return json.NewEncoder(w).Encode(ids)
	}
	if len(ids) == 0 {
		_, err := fmt.Fprintln(w, "-")
		return err
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	_, err := fmt.Fprintln(w, strings.Join(parts, " "))
	return err
}
