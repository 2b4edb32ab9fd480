package engine

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/roach88/chessdb/internal/event"
	"github.com/roach88/chessdb/internal/view"
)

// DefaultPageSize is the number of log entries read per round trip during
// catch-up.
const DefaultPageSize = 500

// Log is the append-only entry source the index is folded from.
type Log interface {
	// ReadAfter returns up to limit entries with seq > afterSeq, in seq order.
	ReadAfter(ctx context.Context, afterSeq int64, limit int) ([]event.Entry, error)

	// Notify returns a channel that receives a value whenever new entries
	// may be available, and a function that releases it. The channel is
	// closed when the log shuts down.
	Notify() (<-chan struct{}, func())
}

// SnapshotStore persists the folded index between runs.
type SnapshotStore interface {
	// LoadSnapshot returns the stored snapshot. ok is false when none exists.
	LoadSnapshot(ctx context.Context) (p view.Persisted, ok bool, err error)
	SaveSnapshot(ctx context.Context, p view.Persisted) error
}

// Snapshot is a frozen index consistent with the log prefix ending at Seq.
//
// Index is shared by every reader of the same snapshot and must not be
// modified.
type Snapshot struct {
	SchemaVersion int
	Seq           int64
	Index         view.Index
}

// IndexStore folds a Log into a view.Index and publishes snapshots.
//
// Thread-safety model:
//   - Snapshot(): safe from any goroutine; concurrent calls share one catch-up
//   - Subscribe(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
type IndexStore struct {
	log        Log
	snapshots  SnapshotStore // nil disables persistence
	classifier *event.Classifier
	clock      Clock
	pageSize   int
	version    int
	tracer     trace.Tracer

	flight singleflight.Group

	// Fold state. Guarded by mu; only catchUp touches it.
	mu     sync.Mutex
	index  view.Index
	seq    int64
	loaded bool
	dirty  bool // index differs from what the snapshot store holds

	// Publication state. Guarded by pubMu.
	pubMu     sync.Mutex
	current   *Snapshot
	subs      map[*Subscription]struct{}
	published int64 // number of snapshots published, for tests and status
}

// Option configures an IndexStore.
type Option func(*IndexStore)

// WithSnapshotStore enables loading and saving snapshots.
func WithSnapshotStore(s SnapshotStore) Option {
	return func(is *IndexStore) {
		is.snapshots = s
	}
}

// WithClock sets the clock used to stamp LastUpdated.
//
// Default: SystemClock
func WithClock(c Clock) Option {
	return func(is *IndexStore) {
		is.clock = c
	}
}

// WithPageSize sets how many entries are read per log round trip.
// Values below 1 are ignored.
//
// Default: 500 entries (DefaultPageSize)
func WithPageSize(n int) Option {
	return func(is *IndexStore) {
		if n > 0 {
			is.pageSize = n
		}
	}
}

// WithClassifier shares an already compiled classifier.
func WithClassifier(c *event.Classifier) Option {
	return func(is *IndexStore) {
		is.classifier = c
	}
}

// WithSchemaVersion overrides view.SchemaVersion. A persisted snapshot
// with any other version is discarded and the log is replayed.
func WithSchemaVersion(v int) Option {
	return func(is *IndexStore) {
		is.version = v
	}
}

// New creates an IndexStore over log. Nothing is read until the first
// Snapshot or Run call.
func New(log Log, opts ...Option) (*IndexStore, error) {
	is := &IndexStore{
		log:      log,
		clock:    SystemClock{},
		pageSize: DefaultPageSize,
		version:  view.SchemaVersion,
		tracer:   otel.Tracer("chessdb/engine"),
		index:    view.NewIndex(),
		subs:     make(map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(is)
	}

	if is.classifier == nil {
		c, err := event.NewClassifier()
		if err != nil {
			return nil, err
		}
		is.classifier = c
	}

	return is, nil
}

// Snapshot catches up with the log and returns the resulting snapshot.
//
// Calls that arrive while a catch-up is in flight wait for it and receive the
// same snapshot. The shared work is not tied to any caller's context:
// cancelling ctx returns ctx.Err() immediately and leaves the catch-up
// running for the other waiters.
func (s *IndexStore) Snapshot(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	ch := s.flight.DoChan("catch-up", func() (any, error) {
		return s.catchUp(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Snapshot{}, res.Err
		}
		return res.Val.(Snapshot), nil
	}
}

// Run tails the log, catching up whenever it signals new entries.
// Blocks until ctx is cancelled or the log's notify channel closes.
//
// Catch-up failures are logged and reported to subscribers; the loop keeps
// running and the next signal tries again from the last folded seq.
func (s *IndexStore) Run(ctx context.Context) error {
	notify, release := s.log.Notify()
	defer release()

	slog.Info("index tail starting", "schema_version", s.version)

	if err := s.tick(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("index tail stopping: context cancelled")
			return ctx.Err()

		case _, ok := <-notify:
			if !ok {
				slog.Info("index tail stopping: log closed")
				return nil
			}
			if err := s.tick(ctx); err != nil {
				return err
			}
		}
	}
}

// tick runs one catch-up for Run. Only context errors are returned.
func (s *IndexStore) tick(ctx context.Context) error {
	if _, err := s.Snapshot(ctx); err != nil {
		if ctx.Err() != nil {
			slog.Info("index tail stopping: context cancelled")
			return ctx.Err()
		}
		slog.Error("index catch-up failed", "error", err)
	}
	return nil
}

// Subscribe registers for every snapshot published from now on. If a
// snapshot has already been published it is delivered immediately.
func (s *IndexStore) Subscribe() *Subscription {
	sub := newSubscription()

	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.subs[sub] = struct{}{}
	sub.release = func() {
		s.pubMu.Lock()
		defer s.pubMu.Unlock()
		delete(s.subs, sub)
	}
	if s.current != nil {
		sub.deliver(Update{Snapshot: *s.current})
	}
	return sub
}

// Published returns the number of snapshots published so far.
func (s *IndexStore) Published() int64 {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	return s.published
}

// catchUp loads the persisted snapshot on first use, folds every entry after
// the last folded seq, and publishes the result.
// CRITICAL: the only writer of the fold state.
func (s *IndexStore) catchUp(ctx context.Context) (snap Snapshot, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, span := s.tracer.Start(ctx, "IndexStore.catchUp", trace.WithAttributes(
		attribute.Int64("index.from_seq", s.seq),
		attribute.Int("index.schema_version", s.version),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.broadcast(Update{Err: err})
		}
		span.End()
	}()

	if !s.loaded {
		if err := s.load(ctx); err != nil {
			return Snapshot{}, err
		}
	}

	start := s.seq
	for {
		entries, err := s.log.ReadAfter(ctx, s.seq, s.pageSize)
		if err != nil {
			return Snapshot{}, sourceUnavailable("read log", s.seq, err)
		}
		s.fold(entries)
		if len(entries) < s.pageSize {
			break
		}
	}

	span.SetAttributes(attribute.Int64("index.to_seq", s.seq))

	if current, ok := s.latest(); ok && s.seq == start {
		if s.dirty {
			s.persist(ctx, current)
		}
		return current, nil
	}

	snap = Snapshot{
		SchemaVersion: s.version,
		Seq:           s.seq,
		Index:         s.index.Clone(),
	}
	if start != s.seq {
		slog.Info("index caught up", "from_seq", start, "to_seq", s.seq, "games", len(snap.Index))
	}

	if s.dirty {
		s.persist(ctx, snap)
	}
	s.publish(snap)
	return snap, nil
}

// load reads the persisted snapshot and decides whether it can be resumed.
func (s *IndexStore) load(ctx context.Context) error {
	s.loaded = true
	if s.snapshots == nil {
		return nil
	}

	p, ok, err := s.snapshots.LoadSnapshot(ctx)
	if err != nil {
		s.loaded = false
		return sourceUnavailable("load snapshot", 0, err)
	}

	switch {
	case !ok:
		slog.Info("no persisted snapshot, folding log from start")
		s.dirty = true
	case p.SchemaVersion != s.version:
		slog.Info("schema version changed, rebuilding index",
			"persisted_version", p.SchemaVersion,
			"current_version", s.version,
			"discarded_seq", p.Seq,
		)
		s.dirty = true
	default:
		s.index = p.Index.Clone()
		s.seq = p.Seq
		slog.Info("snapshot loaded", "seq", p.Seq, "games", len(s.index))
	}
	return nil
}

// fold applies one page of entries in seq order.
func (s *IndexStore) fold(entries []event.Entry) {
	for _, e := range entries {
		if e.Seq <= s.seq {
			continue
		}
		s.seq = e.Seq
		s.dirty = true

		ev, ok := s.classifier.Classify(e)
		if !ok {
			slog.Debug("entry dropped", "seq", e.Seq, "id", e.ID)
			continue
		}

		out := view.Reduce(s.index, ev, s.clock.Now())
		if out.Degenerate {
			slog.Debug("degenerate record",
				"code", ErrCodeDegenerateRecord,
				"kind", ev.Kind.String(),
				"game", ev.GameID,
				"seq", e.Seq,
			)
		}
	}
}

// persist saves snap. Failures are logged; the index stays dirty and the
// next catch-up tries again.
func (s *IndexStore) persist(ctx context.Context, snap Snapshot) {
	if s.snapshots == nil {
		s.dirty = false
		return
	}

	err := s.snapshots.SaveSnapshot(ctx, view.Persisted{
		SchemaVersion: snap.SchemaVersion,
		Seq:           snap.Seq,
		Index:         snap.Index,
	})
	if err != nil {
		slog.Error("snapshot save failed", "seq", snap.Seq, "error", err)
		return
	}
	s.dirty = false
	slog.Debug("snapshot persisted", "seq", snap.Seq, "games", len(snap.Index))
}

func (s *IndexStore) latest() (Snapshot, bool) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	if s.current == nil {
		return Snapshot{}, false
	}
	return *s.current, true
}

func (s *IndexStore) publish(snap Snapshot) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.current = &snap
	s.published++
	for sub := range s.subs {
		sub.deliver(Update{Snapshot: snap})
	}
}

func (s *IndexStore) broadcast(u Update) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	for sub := range s.subs {
		sub.deliver(u)
	}
}
