package event

import (
	"encoding/json"
	"time"
)

// Content types recognised by the classifier.
const (
	TypeInvite = "chess_invite"
	TypeAccept = "chess_invite_accept"
	TypeEnd    = "chess_game_end"
)

// GameID identifies a game. It is the entry id of the invite that opened it.
type GameID string

// PlayerID is an opaque log author identifier.
type PlayerID string

// Entry is one immutable record of the append-only log.
type Entry struct {
	Seq        int64           `json:"seq"` // Log position, strictly increasing
	ID         string          `json:"id"`
	Author     PlayerID        `json:"author"`
	Content    json.RawMessage `json:"content"`
	AppendedAt time.Time       `json:"appended_at,omitempty"`
}

// Kind distinguishes the recognised events.
type Kind int

const (
	// KindInvite opens a game between the author and an invitee.
	KindInvite Kind = iota + 1
	// KindAccept starts a previously invited game.
	KindAccept
	// KindEnd finishes a game with a terminal status.
	KindEnd
)

func (k Kind) String() string {
	switch k {
	case KindInvite:
		return "invite"
	case KindAccept:
		return "accept"
	case KindEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Terminal statuses carried by chess_game_end. Any other value is treated as
// an ending without a winner.
const (
	StatusMate     = "mate"
	StatusDraw     = "draw"
	StatusResigned = "resigned"
)

// Event is a classified log entry.
//
// Fields are populated per kind:
//   - Invite: GameID, Inviter, Invitee, InviterColor
//   - Accept: GameID
//   - End:    GameID, Terminal, Author
type Event struct {
	Kind         Kind
	Seq          int64
	GameID       GameID
	Inviter      PlayerID
	Invitee      PlayerID
	InviterColor string
	Terminal     string
	Author       PlayerID
}

// Invite builds an invite event. Used by tests and scenario fixtures.
func Invite(game GameID, inviter, invitee PlayerID, color string) Event {
	return Event{Kind: KindInvite, GameID: game, Inviter: inviter, Invitee: invitee, InviterColor: color}
}

// Accept builds an accept event.
func Accept(game GameID) Event {
	return Event{Kind: KindAccept, GameID: game}
}

// End builds an end event.
func End(game GameID, terminal string, author PlayerID) Event {
	return Event{Kind: KindEnd, GameID: game, Terminal: terminal, Author: author}
}
