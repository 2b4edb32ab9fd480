// Command chessdb maintains an index of chess games over an append-only
// entry log and answers player queries from it.
package main

import (
	"context"
	"os"

	"github.com/roach88/chessdb/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
