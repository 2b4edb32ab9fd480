package cli

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/chessdb/internal/event"
	"github.com/roach88/chessdb/internal/query"
	"github.com/roach88/chessdb/internal/service"
)

// NewQueryCommand creates the query command and its subcommands.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Answer player queries from the game index",
		Long: `Catch the game index up with the log, persist it, and answer one query.

Exit codes:
  0 - Query answered
  2 - Log or snapshot unreachable, or invalid arguments

Examples:
  chessdb query sent A --db ./games.db
  chessdb query has-player g1 B --format json`,
	}

	cmd.AddCommand(
		playerQuery(rootOpts, "sent", "Pending invites the player sent",
			func(ctx context.Context, svc *service.Service, p event.PlayerID) (any, error) {
				return svc.PendingChallengesSent(ctx, p)
			}),
		playerQuery(rootOpts, "received", "Pending invites the player received",
			func(ctx context.Context, svc *service.Service, p event.PlayerID) (any, error) {
				return svc.PendingChallengesReceived(ctx, p)
			}),
		playerQuery(rootOpts, "agreed", "Started games the player is in",
			func(ctx context.Context, svc *service.Service, p event.PlayerID) (any, error) {
				return svc.GamesAgreedToPlayIDs(ctx, p)
			}),
		playerQuery(rootOpts, "observable", "Started games between two other players",
			func(ctx context.Context, svc *service.Service, p event.PlayerID) (any, error) {
				return svc.ObservableGames(ctx, p)
			}),
		playerQuery(rootOpts, "finished", "Ended games the player was in",
			func(ctx context.Context, svc *service.Service, p event.PlayerID) (any, error) {
				seq, err := svc.FinishedGames(ctx, p)
				if err != nil {
					return nil, err
				}
				return sortedIDs(slices.Collect(seq)), nil
			}),
		playerQuery(rootOpts, "weights", "Opponents weighted by how often and how recently they played",
			func(ctx context.Context, svc *service.Service, p event.PlayerID) (any, error) {
				return svc.WeightedPlayFrequency(ctx, p)
			}),
		newAllGamesCommand(rootOpts),
		newHasPlayerCommand(rootOpts),
	)
	return cmd
}

func playerQuery(
	opts *RootOptions,
	name, short string,
	run func(ctx context.Context, svc *service.Service, player event.PlayerID) (any, error),
) *cobra.Command {
	return &cobra.Command{
		Use:           name + " <player>",
		Short:         short,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				v, err := run(ctx, svc, event.PlayerID(args[0]))
				if err != nil {
					return queryError(err)
				}
				return opts.printResult(cmd, v)
			})
		},
	}
}

func newAllGamesCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "all",
		Short:         "Every game id in the index",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				seq, err := svc.AllGameIDs(ctx)
				if err != nil {
					return queryError(err)
				}
				return opts.printResult(cmd, sortedIDs(slices.Collect(seq)))
			})
		},
	}
}

func newHasPlayerCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "has-player <game> <player>",
		Short:         "Whether the player is in the game",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				ok, err := svc.GameHasPlayer(ctx, event.GameID(args[0]), event.PlayerID(args[1]))
				if err != nil {
					return queryError(err)
				}
				return opts.printResult(cmd, ok)
			})
		},
	}
}

// printResult writes a query answer. JSON output wraps it in a CLIResponse;
// text output is one line per item.
func (o *RootOptions) printResult(cmd *cobra.Command, v any) error {
	if o.Format == "json" {
		return o.formatter(cmd).Success(v)
	}

	w := cmd.OutOrStdout()
	switch val := v.(type) {
	case []event.GameID:
		printIDs(w, val)
	case []query.InviteSummary:
		for _, inv := range val {
			fmt.Fprintf(w, "%s\t%s -> %s\t%s\n", inv.GameID, inv.SentBy, inv.Inviting, colorOrDash(inv.InviterColor))
		}
	case map[event.PlayerID]float64:
		for _, p := range slices.Sorted(maps.Keys(val)) {
			fmt.Fprintf(w, "%s\t%.6f\n", p, val[p])
		}
	default:
		fmt.Fprintln(w, val)
	}
	return nil
}

func printIDs(w io.Writer, ids []event.GameID) {
	for _, id := range ids {
		fmt.Fprintln(w, id)
	}
}

func sortedIDs(ids []event.GameID) []event.GameID {
	if ids == nil {
		return []event.GameID{}
	}
	slices.Sort(ids)
	return ids
}

func colorOrDash(c string) string {
	if c == "" {
		return "-"
	}
	return c
}
