package cli

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/chessdb/internal/config"
	"github.com/roach88/chessdb/internal/telemetry"
)

// RootOptions holds global flags for all commands.
//
// Values not set on the command line come from the CHESSDB_* environment
// (see package config).
type RootOptions struct {
	Verbose     bool
	Format      string // "json" | "text"
	Database    string
	PageSize    int
	TraceStdout bool
	LogLevel    string

	shutdown func(context.Context) error
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// Version is set at build time.
var Version = "dev"

// NewRootCommand creates the root command for the chessdb CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "chessdb",
		Short:   "chessdb - chess games folded from an append-only log",
		Long:    "Maintains an index of chess invites, games and results over an append-only entry log, and answers player queries from it.",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return opts.teardown(cmd.Context())
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output (debug logging)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (default $CHESSDB_DB or chessdb.db)")
	cmd.PersistentFlags().IntVar(&opts.PageSize, "page-size", 0, "log entries read per page during catch-up (default $CHESSDB_PAGE_SIZE or 500)")
	cmd.PersistentFlags().BoolVar(&opts.TraceStdout, "trace", false, "print catch-up spans to stderr")

	// Add subcommands
	cmd.AddCommand(NewAppendCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// setup merges environment configuration under the flags, then installs
// logging and tracing.
func (o *RootOptions) setup(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	flags := cmd.Flags()
	if !flags.Changed("format") {
		o.Format = cfg.Format
	}
	if !flags.Changed("db") {
		o.Database = cfg.Database
	}
	if !flags.Changed("page-size") {
		o.PageSize = cfg.PageSize
	}
	if !flags.Changed("trace") {
		o.TraceStdout = cfg.TraceStdout
	}
	o.LogLevel = cfg.LogLevel

	// Validate format flag
	if !isValidFormat(o.Format) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", o.Format, ValidFormats))
	}
	if o.PageSize <= 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid page size %d: must be positive", o.PageSize))
	}

	level, err := config.ParseLevel(o.LogLevel)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid log level", err)
	}
	if o.Verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))

	if o.TraceStdout {
		shutdown, err := telemetry.Init(commandContext(cmd), telemetry.Config{
			ServiceVersion: Version,
			Stdout:         cmd.ErrOrStderr(),
		})
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to initialise tracing", err)
		}
		o.shutdown = shutdown
	}
	return nil
}

// teardown flushes pending spans.
func (o *RootOptions) teardown(ctx context.Context) error {
	if o.shutdown == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	shutdown := o.shutdown
	o.shutdown = nil
	if err := shutdown(ctx); err != nil {
		slog.Warn("trace shutdown failed", "error", err)
	}
	return nil
}

// formatter returns an OutputFormatter writing to the command's streams.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// commandContext returns the command's context, or Background when the
// command is executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
