package engine

import (
	"context"
	"sync"
)

// Update is one published snapshot, or the error that prevented one.
type Update struct {
	Snapshot Snapshot
	Err      error
}

// Subscription receives published snapshots.
//
// Only the latest undelivered update is kept: a slow reader skips
// intermediate snapshots and always sees the newest one next.
//
// The subscription uses a buffered signal channel (size 1) for
// context-aware waiting, so Next never blocks the publisher.
type Subscription struct {
	mu      sync.Mutex
	pending *Update
	closed  bool
	signal  chan struct{}
	release func()
}

func newSubscription() *Subscription {
	return &Subscription{
		signal:  make(chan struct{}, 1),
		release: func() {},
	}
}

// deliver replaces the pending update. Non-blocking.
func (sub *Subscription) deliver(u Update) {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	if sub.closed {
		return
	}
	sub.pending = &u

	// Buffer of 1 coalesces multiple signals
	select {
	case sub.signal <- struct{}{}:
	default:
	}
}

// Next blocks until an update is available and returns it. An update that
// carries an error is returned as that error.
//
// Returns ctx.Err() on cancellation and ErrSubscriptionClosed after Close.
func (sub *Subscription) Next(ctx context.Context) (Snapshot, error) {
	for {
		sub.mu.Lock()
		if sub.closed {
			sub.mu.Unlock()
			return Snapshot{}, ErrSubscriptionClosed
		}
		if u := sub.pending; u != nil {
			sub.pending = nil
			sub.mu.Unlock()
			return u.Snapshot, u.Err
		}
		sub.mu.Unlock()

		select {
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		case <-sub.signal:
		}
	}
}

// Close stops delivery and wakes a blocked Next. Safe to call more than once.
func (sub *Subscription) Close() {
	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		return
	}
	sub.closed = true
	sub.pending = nil
	close(sub.signal)
	sub.mu.Unlock()

	sub.release()
}
