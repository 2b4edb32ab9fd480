package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/chessdb/internal/view"
)

// marshalIndex converts an index to JSON TEXT for storage: an array of
// records ordered by game id, so equal indexes produce identical payloads.
func marshalIndex(idx view.Index) (string, error) {
	records := make([]view.GameRecord, 0, len(idx))
	for _, id := range idx.SortedIDs() {
		records = append(records, idx[id])
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(records); err != nil {
		return "", fmt.Errorf("marshal index: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalIndex parses JSON TEXT written by marshalIndex.
func unmarshalIndex(data string) (view.Index, error) {
	idx := view.NewIndex()
	if data == "" || data == "[]" {
		return idx, nil
	}

	var records []view.GameRecord
	if err := json.Unmarshal([]byte(data), &records); err != nil {
		return nil, fmt.Errorf("unmarshal index: %w", err)
	}
	for _, rec := range records {
		if rec.ID == "" {
			return nil, fmt.Errorf("unmarshal index: record without game_id")
		}
		if _, dup := idx[rec.ID]; dup {
			return nil, fmt.Errorf("unmarshal index: duplicate game_id %q", rec.ID)
		}
		idx[rec.ID] = rec
	}
	return idx, nil
}
