package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chessdb/internal/event"
	"github.com/roach88/chessdb/internal/testutil"
	"github.com/roach88/chessdb/internal/view"
)

func newStore(t *testing.T, log Log, opts ...Option) *IndexStore {
	t.Helper()
	s, err := New(log, opts...)
	require.NoError(t, err)
	return s
}

// flakySnapshots fails loads or saves on demand.
type flakySnapshots struct {
	MemorySnapshots
	mu      sync.Mutex
	loadErr error
	saveErr error
}

func (f *flakySnapshots) LoadSnapshot(ctx context.Context) (view.Persisted, bool, error) {
	f.mu.Lock()
	err := f.loadErr
	f.mu.Unlock()
	if err != nil {
		return view.Persisted{}, false, err
	}
	return f.MemorySnapshots.LoadSnapshot(ctx)
}

func (f *flakySnapshots) SaveSnapshot(ctx context.Context, p view.Persisted) error {
	f.mu.Lock()
	err := f.saveErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.MemorySnapshots.SaveSnapshot(ctx, p)
}

func (f *flakySnapshots) set(loadErr, saveErr error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadErr, f.saveErr = loadErr, saveErr
}

func TestSnapshot_FoldsLog(t *testing.T) {
	log := testutil.NewMemoryLog()
	log.Invite("g1", "A", "B", "white")
	log.Accept("g1", "B")
	clock := testutil.NewStepClock(time.Time{}, 0)

	s := newStore(t, log, WithClock(clock))
	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, view.SchemaVersion, snap.SchemaVersion)
	assert.Equal(t, int64(2), snap.Seq)
	require.Contains(t, snap.Index, event.GameID("g1"))

	rec := snap.Index["g1"]
	assert.Equal(t, view.PhaseStarted, rec.Phase)
	assert.Equal(t, event.PlayerID("A"), rec.Inviter)
	assert.Equal(t, event.PlayerID("B"), rec.Invitee)
	assert.Equal(t, "white", rec.InviterColor)
	assert.Equal(t, testutil.Epoch.Add(2*time.Second), rec.LastUpdated)
}

func TestSnapshot_EmptyLog(t *testing.T) {
	s := newStore(t, testutil.NewMemoryLog())

	snap, err := s.Snapshot(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.Seq)
	assert.NotNil(t, snap.Index)
	assert.Empty(t, snap.Index)
}

func TestSnapshot_Incremental(t *testing.T) {
	log := testutil.NewMemoryLog()
	log.Invite("g1", "A", "B", "")
	clock := testutil.NewStepClock(time.Time{}, 0)
	s := newStore(t, log, WithClock(clock))
	ctx := context.Background()

	first, err := s.Snapshot(ctx)
	require.NoError(t, err)

	log.Invite("g2", "C", "A", "black")
	second, err := s.Snapshot(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.Seq)
	assert.Len(t, first.Index, 1, "published snapshots are frozen")
	assert.Equal(t, int64(2), second.Seq)
	assert.Len(t, second.Index, 2)
	assert.Equal(t, first.Index["g1"], second.Index["g1"])
	assert.Equal(t, int64(2), clock.Calls(), "each entry is folded exactly once")
}

func TestSnapshot_NoChangeReturnsSameSnapshot(t *testing.T) {
	log := testutil.NewMemoryLog()
	log.Invite("g1", "A", "B", "")
	s := newStore(t, log)
	ctx := context.Background()

	first, err := s.Snapshot(ctx)
	require.NoError(t, err)
	second, err := s.Snapshot(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), s.Published())
}

func TestSnapshot_DroppedEntriesAdvanceSeq(t *testing.T) {
	log := testutil.NewMemoryLog()
	log.Append("", "A", `{"type":"post","text":"hello"}`)
	log.Append("", "A", `not json`)
	log.Append("", "A", `{"type":"chess_invite"}`)
	clock := testutil.NewStepClock(time.Time{}, 0)
	s := newStore(t, log, WithClock(clock))

	snap, err := s.Snapshot(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(3), snap.Seq)
	assert.Empty(t, snap.Index)
	assert.Equal(t, int64(0), clock.Calls())
}

func TestSnapshot_DegenerateRecordsKept(t *testing.T) {
	log := testutil.NewMemoryLog()
	log.Accept("g9", "X")
	log.End("g8", event.StatusMate, "C")
	s := newStore(t, log)

	snap, err := s.Snapshot(context.Background())

	require.NoError(t, err)
	assert.Equal(t, view.PhaseStarted, snap.Index["g9"].Phase)
	assert.Equal(t, view.PhaseEnded, snap.Index["g8"].Phase)
	assert.Equal(t, event.PlayerID("C"), snap.Index["g8"].Winner)
}

func TestSnapshot_Pages(t *testing.T) {
	log := testutil.NewMemoryLog()
	for _, g := range []event.GameID{"g1", "g2", "g3", "g4", "g5"} {
		log.Invite(g, "A", "B", "")
	}
	s := newStore(t, log, WithPageSize(2))

	snap, err := s.Snapshot(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(5), snap.Seq)
	assert.Len(t, snap.Index, 5)
	assert.Equal(t, 3, log.Reads())
}

func TestWithPageSize_IgnoresNonPositive(t *testing.T) {
	s := newStore(t, testutil.NewMemoryLog(), WithPageSize(0), WithPageSize(-3))
	assert.Equal(t, DefaultPageSize, s.pageSize)
}

func TestSnapshot_ResumesFromPersisted(t *testing.T) {
	log := testutil.NewMemoryLog()
	log.Invite("g1", "A", "B", "")
	log.Accept("g1", "B")
	snaps := &MemorySnapshots{}
	ctx := context.Background()

	first := newStore(t, log, WithSnapshotStore(snaps))
	before, err := first.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, snaps.Saves())

	log.End("g1", event.StatusDraw, "A")

	clock := testutil.NewStepClock(time.Time{}, 0)
	second := newStore(t, log, WithSnapshotStore(snaps), WithClock(clock))
	after, err := second.Snapshot(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(3), after.Seq)
	assert.Equal(t, int64(1), clock.Calls(), "only the entry after the persisted seq is folded")
	assert.Equal(t, view.PhaseEnded, after.Index["g1"].Phase)
	assert.Equal(t, before.Index["g1"].Inviter, after.Index["g1"].Inviter)
	assert.Equal(t, 2, snaps.Saves())
}

func TestSnapshot_ResumeWithoutNewEntriesSkipsSave(t *testing.T) {
	log := testutil.NewMemoryLog()
	log.Invite("g1", "A", "B", "")
	snaps := &MemorySnapshots{}
	ctx := context.Background()

	_, err := newStore(t, log, WithSnapshotStore(snaps)).Snapshot(ctx)
	require.NoError(t, err)

	snap, err := newStore(t, log, WithSnapshotStore(snaps)).Snapshot(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(1), snap.Seq)
	assert.Equal(t, 1, snaps.Saves())
}

func TestSnapshot_SchemaVersionMismatchRebuilds(t *testing.T) {
	log := testutil.NewMemoryLog()
	log.Invite("g1", "A", "B", "")
	log.Accept("g1", "B")
	snaps := &MemorySnapshots{}
	ctx := context.Background()

	old := newStore(t, log, WithSnapshotStore(snaps), WithSchemaVersion(view.SchemaVersion-1))
	_, err := old.Snapshot(ctx)
	require.NoError(t, err)

	clock := testutil.NewStepClock(time.Time{}, 0)
	current := newStore(t, log, WithSnapshotStore(snaps), WithClock(clock))
	snap, err := current.Snapshot(ctx)
	require.NoError(t, err)

	assert.Equal(t, view.SchemaVersion, snap.SchemaVersion)
	assert.Equal(t, int64(2), snap.Seq)
	assert.Equal(t, int64(2), clock.Calls(), "the whole log is folded again")

	persisted, ok, err := snaps.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, view.SchemaVersion, persisted.SchemaVersion)
	assert.Equal(t, view.Digest(snap.Index), view.Digest(persisted.Index))
}

func TestSnapshot_SchemaVersionMismatchOnEmptyLogPersistsNewVersion(t *testing.T) {
	log := testutil.NewMemoryLog()
	snaps := &MemorySnapshots{}
	require.NoError(t, snaps.SaveSnapshot(context.Background(), view.Persisted{
		SchemaVersion: 1,
		Seq:           40,
		Index:         view.Index{"stale": {ID: "stale", Phase: view.PhaseInvited}},
	}))

	s := newStore(t, log, WithSnapshotStore(snaps))
	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(0), snap.Seq)
	assert.Empty(t, snap.Index)

	persisted, _, err := snaps.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, view.SchemaVersion, persisted.SchemaVersion)
	assert.Empty(t, persisted.Index)
}

func TestSnapshot_LogUnavailable(t *testing.T) {
	log := testutil.NewMemoryLog()
	log.Invite("g1", "A", "B", "")
	boom := errors.New("connection reset")
	log.Fail(boom)
	s := newStore(t, log)

	_, err := s.Snapshot(context.Background())

	require.Error(t, err)
	assert.True(t, IsSourceUnavailable(err))
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.ErrorIs(t, err, boom)

	log.Fail(nil)
	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Seq)
}

func TestSnapshot_FailureKeepsLastConsistentPrefix(t *testing.T) {
	log := testutil.NewMemoryLog()
	log.Invite("g1", "A", "B", "")
	s := newStore(t, log)
	ctx := context.Background()

	good, err := s.Snapshot(ctx)
	require.NoError(t, err)

	log.Accept("g1", "B")
	log.Fail(errors.New("timeout"))
	_, err = s.Snapshot(ctx)
	require.Error(t, err)

	log.Fail(nil)
	after, err := s.Snapshot(ctx)
	require.NoError(t, err)

	assert.Equal(t, view.PhaseInvited, good.Index["g1"].Phase)
	assert.Equal(t, view.PhaseStarted, after.Index["g1"].Phase)
}

func TestSnapshot_SnapshotStoreUnavailable(t *testing.T) {
	log := testutil.NewMemoryLog()
	log.Invite("g1", "A", "B", "")
	snaps := &flakySnapshots{}
	snaps.set(errors.New("locked"), nil)
	s := newStore(t, log, WithSnapshotStore(snaps))

	_, err := s.Snapshot(context.Background())
	require.Error(t, err)
	assert.True(t, IsSourceUnavailable(err))

	var ie *IndexError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "load snapshot", ie.Op)

	snaps.set(nil, nil)
	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Seq)
}

func TestSnapshot_SaveFailureIsNotFatal(t *testing.T) {
	log := testutil.NewMemoryLog()
	log.Invite("g1", "A", "B", "")
	snaps := &flakySnapshots{}
	snaps.set(nil, errors.New("disk full"))
	s := newStore(t, log, WithSnapshotStore(snaps))
	ctx := context.Background()

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Seq)
	assert.Equal(t, 0, snaps.Saves())

	snaps.set(nil, nil)
	_, err = s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, snaps.Saves(), "a dirty index is saved on the next catch-up")
}

func TestSnapshot_ConcurrentCallsShareCatchUp(t *testing.T) {
	log := testutil.NewMemoryLog()
	log.Invite("g1", "A", "B", "")
	log.Accept("g1", "B")
	entered, release := log.Hold()
	s := newStore(t, log)

	const callers = 8
	results := make([]Snapshot, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.Snapshot(context.Background())
		}(i)
	}

	<-entered
	time.Sleep(50 * time.Millisecond)
	release()
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, int64(2), results[i].Seq)
		assert.Equal(t, view.Digest(results[0].Index), view.Digest(results[i].Index))
	}
	assert.Equal(t, 1, log.Reads())
	assert.Equal(t, int64(1), s.Published())
}

func TestSnapshot_CallerCancellationLeavesCatchUpRunning(t *testing.T) {
	log := testutil.NewMemoryLog()
	log.Invite("g1", "A", "B", "")
	entered, release := log.Hold()
	s := newStore(t, log)

	ctx, cancel := context.WithCancel(context.Background())
	cancelled := make(chan error, 1)
	go func() {
		_, err := s.Snapshot(ctx)
		cancelled <- err
	}()

	<-entered
	cancel()

	select {
	case err := <-cancelled:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}

	waiter := make(chan Snapshot, 1)
	go func() {
		snap, err := s.Snapshot(context.Background())
		assert.NoError(t, err)
		waiter <- snap
	}()

	release()
	snap := <-waiter
	assert.Equal(t, int64(1), snap.Seq)
	assert.Contains(t, snap.Index, event.GameID("g1"))
}

func TestSnapshot_AlreadyCancelled(t *testing.T) {
	log := testutil.NewMemoryLog()
	s := newStore(t, log)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Snapshot(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, log.Reads())
}

func TestRun_TailsLog(t *testing.T) {
	log := testutil.NewMemoryLog()
	s := newStore(t, log)
	sub := s.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()

	initial, err := sub.Next(waitCtx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), initial.Seq)

	log.Invite("g1", "A", "B", "")
	log.Accept("g1", "B")

	var snap Snapshot
	for snap.Seq < 2 {
		snap, err = sub.Next(waitCtx)
		require.NoError(t, err)
	}
	assert.Equal(t, view.PhaseStarted, snap.Index["g1"].Phase)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestRun_StopsWhenLogCloses(t *testing.T) {
	log := testutil.NewMemoryLog()
	s := newStore(t, log)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	// Run registers for notifications before its first catch-up.
	require.Eventually(t, func() bool { return s.Published() == 1 }, 5*time.Second, 5*time.Millisecond)
	log.Close()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after log close")
	}
}

func TestRun_KeepsGoingAfterCatchUpFailure(t *testing.T) {
	log := testutil.NewMemoryLog()
	log.Fail(errors.New("offline"))
	s := newStore(t, log)
	sub := s.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()

	_, err := sub.Next(waitCtx)
	require.Error(t, err)
	assert.True(t, IsSourceUnavailable(err))

	log.Fail(nil)
	log.Invite("g1", "A", "B", "")

	snap, err := sub.Next(waitCtx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Seq)
}
