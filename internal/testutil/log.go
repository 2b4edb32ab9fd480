package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/roach88/chessdb/internal/event"
)

// MemoryLog is an in-memory append-only entry log for tests.
//
// It satisfies engine.Log and adds hooks to inject read failures and to
// hold reads open, which is how catch-up coalescing and cancellation are
// tested without a database.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type MemoryLog struct {
	mu      sync.Mutex
	entries []event.Entry
	fail    error
	gate    chan struct{} // non-nil while reads are held
	entered chan struct{} // receives once per read that reaches the gate
	reads   int
	waiters map[chan struct{}]struct{}
	closed  bool
}

// NewMemoryLog creates an empty log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		waiters: make(map[chan struct{}]struct{}),
	}
}

// Append adds an entry with the next seq and notifies waiters.
//
// content is marshalled to JSON unless it is already a string or
// json.RawMessage. The entry id defaults to "e<seq>" when id is empty.
func (l *MemoryLog) Append(id string, author event.PlayerID, content any) event.Entry {
	raw := toRaw(content)

	l.mu.Lock()
	seq := int64(len(l.entries) + 1)
	if id == "" {
		id = fmt.Sprintf("e%d", seq)
	}
	e := event.Entry{Seq: seq, ID: id, Author: author, Content: raw, AppendedAt: Epoch}
	l.entries = append(l.entries, e)
	l.signalLocked()
	l.mu.Unlock()

	return e
}

// Invite appends a chess_invite entry authored by inviter. The entry id is
// the game id.
func (l *MemoryLog) Invite(game event.GameID, inviter, invitee event.PlayerID, color string) event.Entry {
	content := map[string]any{"type": event.TypeInvite, "inviting": string(invitee)}
	if color != "" {
		content["myColor"] = color
	}
	return l.Append(string(game), inviter, content)
}

// Accept appends a chess_invite_accept entry for game.
func (l *MemoryLog) Accept(game event.GameID, author event.PlayerID) event.Entry {
	return l.Append("", author, map[string]any{"type": event.TypeAccept, "root": string(game)})
}

// End appends a chess_game_end entry for game.
func (l *MemoryLog) End(game event.GameID, status string, author event.PlayerID) event.Entry {
	return l.Append("", author, map[string]any{"type": event.TypeEnd, "root": string(game), "status": status})
}

// ReadAfter implements engine.Log.
func (l *MemoryLog) ReadAfter(ctx context.Context, afterSeq int64, limit int) ([]event.Entry, error) {
	l.mu.Lock()
	gate, entered := l.gate, l.entered
	l.mu.Unlock()

	if gate != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.reads++
	if l.fail != nil {
		return nil, l.fail
	}

	if afterSeq < 0 {
		afterSeq = 0
	}
	if afterSeq >= int64(len(l.entries)) {
		return []event.Entry{}, nil
	}
	rest := l.entries[afterSeq:]
	if limit > 0 && len(rest) > limit {
		rest = rest[:limit]
	}
	out := make([]event.Entry, len(rest))
	copy(out, rest)
	return out, nil
}

// Notify implements engine.Log.
func (l *MemoryLog) Notify() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		close(ch)
		return ch, func() {}
	}
	l.waiters[ch] = struct{}{}

	return ch, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if _, ok := l.waiters[ch]; ok {
			delete(l.waiters, ch)
			close(ch)
		}
	}
}

// Close closes every notify channel.
func (l *MemoryLog) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	l.closed = true
	for ch := range l.waiters {
		delete(l.waiters, ch)
		close(ch)
	}
}

// Fail makes every subsequent read return err. Fail(nil) restores reads.
func (l *MemoryLog) Fail(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fail = err
}

// Hold blocks reads until the returned release func is called. The entered
// channel receives once for each read that starts waiting.
func (l *MemoryLog) Hold() (entered <-chan struct{}, release func()) {
	gate := make(chan struct{})
	in := make(chan struct{}, 16)

	l.mu.Lock()
	l.gate = gate
	l.entered = in
	l.mu.Unlock()

	var once sync.Once
	return in, func() {
		once.Do(func() {
			l.mu.Lock()
			l.gate = nil
			l.entered = nil
			l.mu.Unlock()
			close(gate)
		})
	}
}

// Reads returns how many reads completed.
func (l *MemoryLog) Reads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reads
}

// Len returns the number of entries.
func (l *MemoryLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *MemoryLog) signalLocked() {
	for ch := range l.waiters {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func toRaw(content any) json.RawMessage {
	switch c := content.(type) {
	case json.RawMessage:
		return c
	case string:
		return json.RawMessage(c)
	case []byte:
		return json.RawMessage(c)
	default:
		b, err := json.Marshal(c)
		if err != nil {
			panic(fmt.Sprintf("testutil: marshal content: %v", err))
		}
		return b
	}
}
