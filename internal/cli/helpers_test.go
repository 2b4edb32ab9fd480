package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/chessdb/internal/store"
)

// chessLog is a small log: g1 pending A->B, g2 started C vs D, g3 A vs B
// ended by resignation of B.
const chessLog = `{"id":"g1","author":"A","content":{"type":"chess_invite","inviting":"B","myColor":"white"}}
{"id":"g2","author":"C","content":{"type":"chess_invite","inviting":"D","myColor":"black"}}
{"id":"a2","author":"D","content":{"type":"chess_invite_accept","root":"g2"}}
{"id":"g3","author":"A","content":{"type":"chess_invite","inviting":"B"}}
{"id":"a3","author":"B","content":{"type":"chess_invite_accept","root":"g3"}}
{"id":"e3","author":"B","content":{"type":"chess_game_end","root":"g3","status":"resigned"}}
{"id":"p1","author":"A","content":{"type":"post","text":"gg"}}
`

// testOptions returns options for running subcommands directly, without the
// root command's setup.
func testOptions(t *testing.T, format string) *RootOptions {
	t.Helper()
	return &RootOptions{
		Format:   format,
		Database: filepath.Join(t.TempDir(), "test.db"),
		PageSize: 2,
	}
}

// seedLog appends input to the database at path.
func seedLog(t *testing.T, path, input string) {
	t.Helper()
	entries, err := readEntries(strings.NewReader(input))
	require.NoError(t, err)

	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	_, err = st.AppendAll(context.Background(), entries)
	require.NoError(t, err)
}

// execute runs the full CLI the way main does.
func execute(t *testing.T, args ...string) (stdout, stderr string, code int) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = Execute(t.Context(), args, &out, &errOut)
	return out.String(), errOut.String(), code
}
