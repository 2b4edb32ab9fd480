package view

import (
	"time"

	"github.com/roach88/chessdb/internal/event"
)

// Outcome describes what a single Reduce call did to the index.
type Outcome struct {
	Created    bool // A record was created for the game
	Degenerate bool // The record was created without a known invite
}

// Reduce applies one classified event to idx in place.
//
// Events must be applied one at a time in log order. now stamps LastUpdated;
// it is the only input that differs between two replays of the same log.
func Reduce(idx Index, ev event.Event, now time.Time) Outcome {
	switch ev.Kind {
	case event.KindInvite:
		return reduceInvite(idx, ev, now)
	case event.KindAccept:
		return reduceAccept(idx, ev, now)
	case event.KindEnd:
		return reduceEnd(idx, ev, now)
	default:
		return Outcome{}
	}
}

func reduceInvite(idx Index, ev event.Event, now time.Time) Outcome {
	rec, exists := idx[ev.GameID]
	if !exists {
		rec = GameRecord{ID: ev.GameID, Phase: PhaseInvited}
	}

	rec.Inviter = ev.Inviter
	rec.Invitee = ev.Invitee
	rec.InviterColor = ev.InviterColor
	rec.LastUpdated = now

	idx[ev.GameID] = rec
	return Outcome{Created: !exists}
}

func reduceAccept(idx Index, ev event.Event, now time.Time) Outcome {
	rec, exists := idx[ev.GameID]
	if !exists {
		// No invite seen: keep a participant-less started game. It is never
		// observable and never matches a player query, and carries no
		// timestamp so it cannot skew frequency weights.
		idx[ev.GameID] = GameRecord{ID: ev.GameID, Phase: PhaseStarted}
		return Outcome{Created: true, Degenerate: true}
	}

	rec.LastUpdated = now
	rec.Phase = advance(rec.Phase, PhaseStarted)

	idx[ev.GameID] = rec
	return Outcome{}
}

func reduceEnd(idx Index, ev event.Event, now time.Time) Outcome {
	rec, exists := idx[ev.GameID]
	if !exists {
		rec = GameRecord{ID: ev.GameID}
	}

	rec.Phase = PhaseEnded
	rec.Terminal = ev.Terminal
	if winner := winnerOf(rec, ev); winner != "" {
		rec.Winner = winner
	}
	rec.LastUpdated = now

	idx[ev.GameID] = rec
	return Outcome{Created: !exists, Degenerate: !exists}
}

// advance moves from to target only if target is further along.
func advance(from, target Phase) Phase {
	if target.rank() > from.rank() {
		return target
	}
	return from
}

// winnerOf infers the winner of an end event from the players known when it
// is applied.
func winnerOf(rec GameRecord, ev event.Event) event.PlayerID {
	switch ev.Terminal {
	case event.StatusMate:
		return ev.Author
	case event.StatusResigned:
		for _, p := range []event.PlayerID{rec.Inviter, rec.Invitee} {
			if p != "" && p != ev.Author {
				return p
			}
		}
		return ""
	default:
		return ""
	}
}
