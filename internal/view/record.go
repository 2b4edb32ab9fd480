package view

import (
	"maps"
	"slices"
	"time"

	"github.com/roach88/chessdb/internal/event"
)

// Phase is the lifecycle position of a game. It only moves forward.
type Phase string

const (
	PhaseInvited Phase = "invited"
	PhaseStarted Phase = "started"
	PhaseEnded   Phase = "ended"
)

// rank orders phases for the forward-only invariant.
func (p Phase) rank() int {
	switch p {
	case PhaseInvited:
		return 1
	case PhaseStarted:
		return 2
	case PhaseEnded:
		return 3
	default:
		return 0
	}
}

// GameRecord is the per-game state folded from the log.
//
// Empty player and color fields mean "unknown": degenerate records created by
// an accept or end without a matching invite carry no participants.
type GameRecord struct {
	ID           event.GameID   `json:"game_id"`
	Inviter      event.PlayerID `json:"inviter,omitempty"`
	Invitee      event.PlayerID `json:"invitee,omitempty"`
	InviterColor string         `json:"inviter_color,omitempty"`
	Phase        Phase          `json:"phase"`
	Terminal     string         `json:"terminal,omitempty"` // Set only when Phase is PhaseEnded
	Winner       event.PlayerID `json:"winner,omitempty"`
	LastUpdated  time.Time      `json:"last_updated"` // Processing wall-clock time, not event time
}

// Ended reports whether the game has finished.
func (r GameRecord) Ended() bool {
	return r.Phase == PhaseEnded
}

// HasPlayer reports whether p is the inviter or the invitee.
func (r GameRecord) HasPlayer(p event.PlayerID) bool {
	return p != "" && (r.Inviter == p || r.Invitee == p)
}

// PlayersKnown reports whether both participants are known.
func (r GameRecord) PlayersKnown() bool {
	return r.Inviter != "" && r.Invitee != ""
}

// Opponent returns the participant that is not p.
func (r GameRecord) Opponent(p event.PlayerID) event.PlayerID {
	if r.Invitee != p {
		return r.Invitee
	}
	return r.Inviter
}

// Index maps game ids to records. Consumers must not rely on iteration order.
type Index map[event.GameID]GameRecord

// NewIndex returns an empty index.
func NewIndex() Index {
	return make(Index)
}

// Clone returns an independent copy. Records are values, so a shallow map
// copy is enough.
func (idx Index) Clone() Index {
	if idx == nil {
		return NewIndex()
	}
	return maps.Clone(idx)
}

// SortedIDs returns the game ids in byte order.
func (idx Index) SortedIDs() []event.GameID {
	ids := slices.Collect(maps.Keys(idx))
	slices.Sort(ids)
	return ids
}

// Persisted is an index as handed to and from a snapshot store.
type Persisted struct {
	SchemaVersion int
	Seq           int64 // Last log position folded into Index
	Index         Index
}
