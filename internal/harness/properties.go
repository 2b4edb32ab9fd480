package harness

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/roach88/chessdb/internal/engine"
	"github.com/roach88/chessdb/internal/event"
	"github.com/roach88/chessdb/internal/query"
	"github.com/roach88/chessdb/internal/testutil"
	"github.com/roach88/chessdb/internal/view"
)

// outsider never authors entries, so every game with known players is
// observable by it.
const outsider event.PlayerID = "harness:outsider"

var phaseRank = map[view.Phase]int{
	view.PhaseInvited: 1,
	view.PhaseStarted: 2,
	view.PhaseEnded:   3,
}

// CheckProperties verifies what must hold for any log and returns failure
// messages:
//   - a fresh replay of entries yields final, timestamps excluded
//   - folding one entry at a time never moves a game's phase backward
//   - every started game with both players known is observable by a
//     player outside it
func CheckProperties(ctx context.Context, entries []event.Entry, final view.Index) []string {
	var errs []string

	replayed, err := foldPrefix(ctx, entries, int64(len(entries)))
	if err != nil {
		return []string{fmt.Sprintf("property replay: %v", err)}
	}
	if view.Digest(replayed, view.WithoutTimestamps()) != view.Digest(final, view.WithoutTimestamps()) {
		errs = append(errs, "property replay: fresh replay produced a different index")
	}

	errs = append(errs, checkMonotone(ctx, entries)...)

	var want []event.GameID
	for _, id := range final.SortedIDs() {
		if rec := final[id]; rec.Phase == view.PhaseStarted && rec.PlayersKnown() {
			want = append(want, id)
		}
	}
	got := query.ObservableGames(final, outsider)
	slices.Sort(got)
	if !slices.Equal(want, got) {
		errs = append(errs, fmt.Sprintf("property observable: want %v, got %v", want, got))
	}

	return errs
}

// checkMonotone folds entries one at a time into a single index.
func checkMonotone(ctx context.Context, entries []event.Entry) []string {
	log := &sliceLog{entries: entries}
	idx, err := engine.New(log, engine.WithClock(testutil.NewStepClock(time.Time{}, 0)))
	if err != nil {
		return []string{fmt.Sprintf("property monotone: %v", err)}
	}

	var errs []string
	prev := view.NewIndex()
	for upto := int64(1); upto <= int64(len(entries)); upto++ {
		log.setUpto(upto)
		snap, err := idx.Snapshot(ctx)
		if err != nil {
			return append(errs, fmt.Sprintf("property monotone: seq %d: %v", upto, err))
		}
		for id, before := range prev {
			after, ok := snap.Index[id]
			if !ok {
				errs = append(errs, fmt.Sprintf("property monotone: seq %d removed %s", upto, id))
				continue
			}
			if phaseRank[after.Phase] < phaseRank[before.Phase] {
				errs = append(errs, fmt.Sprintf("property monotone: seq %d moved %s from %s to %s",
					upto, id, before.Phase, after.Phase))
			}
		}
		prev = snap.Index
	}
	return errs
}

func foldPrefix(ctx context.Context, entries []event.Entry, upto int64) (view.Index, error) {
	log := &sliceLog{entries: entries, upto: upto}
	idx, err := engine.New(log, engine.WithClock(testutil.NewStepClock(time.Time{}, 0)))
	if err != nil {
		return nil, err
	}
	snap, err := idx.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Index, nil
}

// sliceLog serves the first upto entries of a fixed slice.
type sliceLog struct {
	mu      sync.Mutex
	entries []event.Entry
	upto    int64
}

func (l *sliceLog) setUpto(n int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.upto = n
}

// ReadAfter implements engine.Log. Positions are slice offsets, so entry
// seqs from the source log are ignored.
func (l *sliceLog) ReadAfter(_ context.Context, afterSeq int64, limit int) ([]event.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := []event.Entry{}
	for i := afterSeq; i < l.upto && i < int64(len(l.entries)); i++ {
		if limit > 0 && len(out) == limit {
			break
		}
		e := l.entries[i]
		e.Seq = i + 1
		out = append(out, e)
	}
	return slices.Clip(out), nil
}

// Notify implements engine.Log. The log never grows on its own.
func (l *sliceLog) Notify() (<-chan struct{}, func()) {
	return make(chan struct{}), func() {}
}
