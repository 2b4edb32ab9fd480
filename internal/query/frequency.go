package query

import (
	"errors"

	"github.com/roach88/chessdb/internal/event"
	"github.com/roach88/chessdb/internal/view"
)

// ErrZeroScale is returned by WeightedPlayFrequency when the player has games
// but none of them carries a last-updated time, so no recency scale exists.
var ErrZeroScale = errors.New("weighted play frequency: no game has a last-updated time")

// WeightedPlayFrequency weights every opponent player has faced by how often
// and how recently they played.
//
// Each shared game contributes lastUpdated / newest, where newest is the most
// recent lastUpdated across all of player's games. A player without games
// gets an empty map.
func WeightedPlayFrequency(idx view.Index, player event.PlayerID) (map[event.PlayerID]float64, error) {
	weights := map[event.PlayerID]float64{}

	var games []view.GameRecord
	for _, rec := range idx {
		if rec.HasPlayer(player) {
			games = append(games, rec)
		}
	}
	if len(games) == 0 {
		return weights, nil
	}

	var scale float64
	for _, rec := range games {
		scale = max(scale, unixSeconds(rec))
	}
	if scale == 0 {
		return nil, ErrZeroScale
	}

	for _, rec := range games {
		opponent := rec.Opponent(player)
		if opponent == "" {
			continue
		}
		weights[opponent] += unixSeconds(rec) / scale
	}

	return weights, nil
}

// unixSeconds returns LastUpdated as fractional Unix seconds, 0 when unset.
func unixSeconds(rec view.GameRecord) float64 {
	if rec.LastUpdated.IsZero() {
		return 0
	}
	return float64(rec.LastUpdated.UnixMilli()) / 1000
}
