package store

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/chessdb/internal/event"
)

var testNow = time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)

// createTestStore opens a store in a temp dir with deterministic ids and
// clock. Closed on test cleanup.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	opts = append([]Option{
		WithIDGenerator(NewSequenceGenerator("entry")),
		WithNow(func() time.Time { return testNow }),
	}, opts...)
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// entry builds an unsequenced entry for Append.
func entry(id string, author event.PlayerID, content string) event.Entry {
	return event.Entry{ID: id, Author: author, Content: json.RawMessage(content)}
}
