package cli

import (
	"context"
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/chessdb/internal/config"
)

// Execute runs the CLI with args and returns the process exit code. Errors
// are reported on stderr, or on stdout as a CLIResponse with --format json.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Reported {
		return exitErr.Code
	}

	out := &OutputFormatter{Format: errorFormat(cmd), Writer: stdout, ErrWriter: stderr}
	_ = out.Error(ErrorCode(err), err.Error(), nil)

	if exitErr == nil {
		// Usage errors from cobra: unknown command, missing arguments.
		return ExitCommandError
	}
	return exitErr.Code
}

// errorFormat picks the format for reporting err: the --format flag when set,
// then CHESSDB_FORMAT, then text.
func errorFormat(cmd *cobra.Command) string {
	if f := cmd.PersistentFlags().Lookup("format"); f != nil && f.Changed {
		if isValidFormat(f.Value.String()) {
			return f.Value.String()
		}
		return "text"
	}
	if cfg, err := config.Load(); err == nil {
		return cfg.Format
	}
	return "text"
}
