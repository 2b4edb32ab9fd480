package harness

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/chessdb/internal/engine"
	"github.com/roach88/chessdb/internal/event"
	"github.com/roach88/chessdb/internal/service"
	"github.com/roach88/chessdb/internal/store"
	"github.com/roach88/chessdb/internal/testutil"
)

// Harness executes scenarios against a fresh store and index.
type Harness struct {
	store  *store.Store
	index  *engine.IndexStore
	svc    *service.Service
	logger *slog.Logger
}

// Option configures a Run.
type Option func(*runConfig)

type runConfig struct {
	pageSize int
	logger   *slog.Logger
}

// WithPageSize sets the log page size of the index under test.
func WithPageSize(n int) Option {
	return func(c *runConfig) {
		c.pageSize = n
	}
}

// WithLogger sets the logger for harness progress messages.
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) {
		c.logger = l
	}
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database. Entry ids and
// last-updated times are deterministic, so two runs of the same scenario
// produce identical indexes.
//
// Execution flow:
//  1. Append the scenario entries to an empty store
//  2. Fold the log into an index persisted to the same store
//  3. Evaluate assertions through the query service
//  4. Check the index properties that must hold for any log
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{pageSize: engine.DefaultPageSize, logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	st, err := store.Open(":memory:",
		store.WithIDGenerator(store.NewSequenceGenerator(scenario.Name)),
		store.WithNow(func() time.Time { return testutil.Epoch }),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	idx, err := engine.New(st,
		engine.WithSnapshotStore(st),
		engine.WithClock(testutil.NewStepClock(time.Time{}, 0)),
		engine.WithPageSize(cfg.pageSize),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	h := &Harness{
		store:  st,
		index:  idx,
		svc:    service.New(idx),
		logger: cfg.logger,
	}

	entries, err := h.appendEntries(ctx, scenario.Entries)
	if err != nil {
		return nil, err
	}

	snap, err := h.index.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fold log: %w", err)
	}

	result := NewResult()
	result.Seq = snap.Seq
	result.Index = snap.Index

	for _, msg := range EvaluateAssertions(ctx, h.svc, snap.Index, scenario.Assertions) {
		result.AddError(msg)
	}
	for _, msg := range CheckProperties(ctx, entries, snap.Index) {
		result.AddError(msg)
	}

	h.logger.Debug("scenario finished",
		"scenario", scenario.Name,
		"entries", len(entries),
		"games", len(snap.Index),
		"pass", result.Pass,
	)
	return result, nil
}

// appendEntries writes every step to the store and returns the stored
// entries in log order.
func (h *Harness) appendEntries(ctx context.Context, steps []Step) ([]event.Entry, error) {
	entries := make([]event.Entry, 0, len(steps))
	for i, step := range steps {
		e, err := step.Entry()
		if err != nil {
			return nil, fmt.Errorf("entries[%d]: %w", i, err)
		}
		stored, created, err := h.store.Append(ctx, e)
		if err != nil {
			return nil, fmt.Errorf("entries[%d]: failed to append: %w", i, err)
		}
		if !created {
			h.logger.Debug("duplicate entry id ignored", "step", i, "id", stored.ID)
			continue
		}
		entries = append(entries, stored)
	}
	return entries, nil
}
