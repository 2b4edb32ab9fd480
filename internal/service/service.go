// Package service exposes the game index as the query operations and live
// subscriptions clients call.
//
// Every call first catches the index up with the log, so results always
// reflect every entry appended before the call began. A log that cannot be
// read fails the call with engine.ErrSourceUnavailable; there are no partial
// results.
package service

import (
	"context"
	"fmt"
	"iter"

	"github.com/roach88/chessdb/internal/engine"
	"github.com/roach88/chessdb/internal/event"
	"github.com/roach88/chessdb/internal/query"
	"github.com/roach88/chessdb/internal/stream"
	"github.com/roach88/chessdb/internal/view"
)

// Indexer is the part of engine.IndexStore the service needs.
type Indexer interface {
	Snapshot(ctx context.Context) (engine.Snapshot, error)
	Subscribe() *engine.Subscription
}

// IDStream is a de-duplicated stream of game id lists.
type IDStream = stream.Stream[[]event.GameID]

// Service answers queries against the latest snapshot.
type Service struct {
	index Indexer
}

// New creates a Service over index.
func New(index Indexer) *Service {
	return &Service{index: index}
}

func (s *Service) snapshot(ctx context.Context, op string) (view.Index, error) {
	snap, err := s.index.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return snap.Index, nil
}

// PendingChallengesSent lists invites player sent that are still unanswered.
func (s *Service) PendingChallengesSent(ctx context.Context, player event.PlayerID) ([]query.InviteSummary, error) {
	idx, err := s.snapshot(ctx, "pending challenges sent")
	if err != nil {
		return nil, err
	}
	return query.PendingChallengesSent(idx, player), nil
}

// PendingChallengesReceived lists unanswered invites addressed to player.
func (s *Service) PendingChallengesReceived(ctx context.Context, player event.PlayerID) ([]query.InviteSummary, error) {
	idx, err := s.snapshot(ctx, "pending challenges received")
	if err != nil {
		return nil, err
	}
	return query.PendingChallengesReceived(idx, player), nil
}

// GamesAgreedToPlayIDs lists started games player takes part in.
func (s *Service) GamesAgreedToPlayIDs(ctx context.Context, player event.PlayerID) ([]event.GameID, error) {
	idx, err := s.snapshot(ctx, "games agreed to play")
	if err != nil {
		return nil, err
	}
	return query.GamesAgreedToPlayIDs(idx, player), nil
}

// ObservableGames lists started games between two known players other than
// player.
func (s *Service) ObservableGames(ctx context.Context, player event.PlayerID) ([]event.GameID, error) {
	idx, err := s.snapshot(ctx, "observable games")
	if err != nil {
		return nil, err
	}
	return query.ObservableGames(idx, player), nil
}

// FinishedGames returns a lazy sequence over player's ended games in the
// snapshot taken at call time.
func (s *Service) FinishedGames(ctx context.Context, player event.PlayerID) (iter.Seq[event.GameID], error) {
	idx, err := s.snapshot(ctx, "finished games")
	if err != nil {
		return nil, err
	}
	return query.FinishedGames(idx, player), nil
}

// AllGameIDs returns a lazy sequence over every game id in the snapshot
// taken at call time.
func (s *Service) AllGameIDs(ctx context.Context) (iter.Seq[event.GameID], error) {
	idx, err := s.snapshot(ctx, "all game ids")
	if err != nil {
		return nil, err
	}
	return query.AllGameIDs(idx), nil
}

// GameHasPlayer reports whether player is a participant of game.
func (s *Service) GameHasPlayer(ctx context.Context, game event.GameID, player event.PlayerID) (bool, error) {
	idx, err := s.snapshot(ctx, "game has player")
	if err != nil {
		return false, err
	}
	return query.GameHasPlayer(idx, game, player), nil
}

// WeightedPlayFrequency weighs each of player's opponents by recency.
func (s *Service) WeightedPlayFrequency(ctx context.Context, player event.PlayerID) (map[event.PlayerID]float64, error) {
	idx, err := s.snapshot(ctx, "weighted play frequency")
	if err != nil {
		return nil, err
	}
	weights, err := query.WeightedPlayFrequency(idx, player)
	if err != nil {
		return nil, fmt.Errorf("weighted play frequency for %s: %w", player, err)
	}
	return weights, nil
}

// WatchAgreedToPlay streams GamesAgreedToPlayIDs for player, returning a new
// list only when the set of ids changes.
//
// The caller must Close the stream.
func (s *Service) WatchAgreedToPlay(ctx context.Context, player event.PlayerID) (*IDStream, error) {
	return s.watch(ctx, "watch games agreed to play", func(idx view.Index) []event.GameID {
		return query.GamesAgreedToPlayIDs(idx, player)
	})
}

// WatchObservable streams ObservableGames for player, returning a new list
// only when the set of ids changes.
//
// The caller must Close the stream.
func (s *Service) WatchObservable(ctx context.Context, player event.PlayerID) (*IDStream, error) {
	return s.watch(ctx, "watch observable games", func(idx view.Index) []event.GameID {
		return query.ObservableGames(idx, player)
	})
}

// watch subscribes before catching up so no snapshot published in between
// is missed.
func (s *Service) watch(ctx context.Context, op string, q func(view.Index) []event.GameID) (*IDStream, error) {
	sub := s.index.Subscribe()
	if _, err := s.index.Snapshot(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return stream.Watch(sub, func(snap engine.Snapshot) []event.GameID {
		return q(snap.Index)
	}, stream.SameIDs[event.GameID]), nil
}
