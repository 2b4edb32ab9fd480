// Package stream turns a sequence of upstream states into a de-duplicated
// sequence of query results.
package stream

import (
	"context"
	"iter"
	"sync"
)

// Source yields successive upstream states. engine.Subscription is the
// production implementation.
type Source[S any] interface {
	Next(ctx context.Context) (S, error)
	Close()
}

// Stream re-evaluates a query on every upstream state and returns only
// results that differ from the last one returned.
//
// A Stream is not safe for concurrent use: call Next from one goroutine.
type Stream[T any] struct {
	next    func(ctx context.Context) (T, error)
	close   func()
	once    sync.Once
	equal   func(a, b T) bool
	last    T
	emitted bool
}

// Watch derives a Stream from src. The first result is always returned;
// after that a result is returned only when equal(last, next) is false.
//
// The Stream owns src and closes it on Close or when a Next is cancelled.
func Watch[S, T any](src Source[S], query func(S) T, equal func(a, b T) bool) *Stream[T] {
	return &Stream[T]{
		next: func(ctx context.Context) (T, error) {
			s, err := src.Next(ctx)
			if err != nil {
				var zero T
				return zero, err
			}
			return query(s), nil
		},
		close: src.Close,
		equal: equal,
	}
}

// Next blocks until the query result changes and returns the new result.
//
// Upstream errors are returned as they arrive and do not reset the last
// returned result. On cancellation the source is closed and ctx.Err() is
// returned.
func (s *Stream[T]) Next(ctx context.Context) (T, error) {
	for {
		v, err := s.next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.Close()
			}
			var zero T
			return zero, err
		}
		if s.emitted && s.equal(s.last, v) {
			continue
		}
		s.last, s.emitted = v, true
		return v, nil
	}
}

// All ranges over results until the loop body breaks or Next fails. A
// failure is yielded once as the final pair.
func (s *Stream[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			v, err := s.Next(ctx)
			if !yield(v, err) || err != nil {
				return
			}
		}
	}
}

// Close releases the upstream source. Safe to call more than once.
func (s *Stream[T]) Close() {
	s.once.Do(s.close)
}
