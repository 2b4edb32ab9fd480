// Package query answers questions about a frozen game index.
//
// Every function is pure and total over the index it is given. List results
// are sorted by game id for stable output, although callers must treat them
// as unordered. FinishedGames and AllGameIDs are lazy and walk the index they
// were handed; pass them a snapshot, never a live index.
package query

import (
	"cmp"
	"iter"
	"slices"
	"time"

	"github.com/roach88/chessdb/internal/event"
	"github.com/roach88/chessdb/internal/view"
)

// InviteSummary describes a pending challenge.
type InviteSummary struct {
	GameID       event.GameID   `json:"game_id"`
	SentBy       event.PlayerID `json:"sent_by"`
	Inviting     event.PlayerID `json:"inviting"`
	InviterColor string         `json:"inviter_color,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

func summarize(rec view.GameRecord) InviteSummary {
	return InviteSummary{
		GameID:       rec.ID,
		SentBy:       rec.Inviter,
		Inviting:     rec.Invitee,
		InviterColor: rec.InviterColor,
		Timestamp:    rec.LastUpdated,
	}
}

// PendingChallengesSent returns the invites player sent that are not yet
// accepted.
func PendingChallengesSent(idx view.Index, player event.PlayerID) []InviteSummary {
	return pending(idx, func(rec view.GameRecord) bool {
		return rec.Inviter == player
	})
}

// PendingChallengesReceived returns the invites player received that are not
// yet accepted.
func PendingChallengesReceived(idx view.Index, player event.PlayerID) []InviteSummary {
	return pending(idx, func(rec view.GameRecord) bool {
		return rec.Invitee == player
	})
}

func pending(idx view.Index, match func(view.GameRecord) bool) []InviteSummary {
	result := []InviteSummary{}
	for _, rec := range idx {
		if rec.Phase == view.PhaseInvited && match(rec) {
			result = append(result, summarize(rec))
		}
	}
	slices.SortFunc(result, func(a, b InviteSummary) int {
		return cmp.Compare(a.GameID, b.GameID)
	})
	return result
}

// GamesAgreedToPlayIDs returns the started games player takes part in.
func GamesAgreedToPlayIDs(idx view.Index, player event.PlayerID) []event.GameID {
	return collect(idx, func(rec view.GameRecord) bool {
		return rec.Phase == view.PhaseStarted && rec.HasPlayer(player)
	})
}

// ObservableGames returns the started games player can spectate: player is
// not a participant and both participants are known.
func ObservableGames(idx view.Index, player event.PlayerID) []event.GameID {
	return collect(idx, func(rec view.GameRecord) bool {
		return rec.Phase == view.PhaseStarted &&
			rec.Inviter != player &&
			rec.Invitee != player &&
			rec.PlayersKnown()
	})
}

func collect(idx view.Index, match func(view.GameRecord) bool) []event.GameID {
	ids := []event.GameID{}
	for id, rec := range idx {
		if match(rec) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// FinishedGames yields the games player took part in that have ended.
func FinishedGames(idx view.Index, player event.PlayerID) iter.Seq[event.GameID] {
	return func(yield func(event.GameID) bool) {
		for id, rec := range idx {
			if rec.Phase != view.PhaseInvited && rec.Phase != view.PhaseStarted && rec.HasPlayer(player) {
				if !yield(id) {
					return
				}
			}
		}
	}
}

// AllGameIDs yields every game id in the index.
func AllGameIDs(idx view.Index) iter.Seq[event.GameID] {
	return func(yield func(event.GameID) bool) {
		for id := range idx {
			if !yield(id) {
				return
			}
		}
	}
}

// GameHasPlayer reports whether player is a participant of game. Unknown
// games have no players.
func GameHasPlayer(idx view.Index, game event.GameID, player event.PlayerID) bool {
	rec, ok := idx[game]
	if !ok {
		return false
	}
	return rec.HasPlayer(player)
}
