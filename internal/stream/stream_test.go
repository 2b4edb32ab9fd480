package stream

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource replays a fixed list of states, then blocks until ctx is done.
type fakeSource struct {
	states []step
	closed bool
	closes int
}

type step struct {
	ids []string
	err error
}

func (f *fakeSource) Next(ctx context.Context) ([]string, error) {
	if len(f.states) == 0 {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	s := f.states[0]
	f.states = f.states[1:]
	return s.ids, s.err
}

func (f *fakeSource) Close() {
	f.closed = true
	f.closes++
}

func source(steps ...step) *fakeSource {
	return &fakeSource{states: steps}
}

func ids(v ...string) step { return step{ids: v} }

func identity(s []string) []string { return s }

func TestWatch_FirstValueAlwaysEmitted(t *testing.T) {
	s := Watch(source(ids()), identity, SameIDs[string])

	v, err := s.Next(context.Background())

	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestWatch_SuppressesEqualResults(t *testing.T) {
	src := source(
		ids("g1"),
		ids("g1"),
		ids("g1"),
		ids("g1", "g2"),
		ids("g2", "g1"),
		ids("g2"),
	)
	s := Watch(src, identity, SameIDs[string])
	ctx := context.Background()

	var got [][]string
	for i := 0; i < 3; i++ {
		v, err := s.Next(ctx)
		require.NoError(t, err)
		got = append(got, v)
	}

	assert.Equal(t, [][]string{{"g1"}, {"g1", "g2"}, {"g2"}}, got)
}

func TestWatch_SameSizeDifferentSetIsAChange(t *testing.T) {
	s := Watch(source(ids("g1", "g2"), ids("g1", "g3")), identity, SameIDs[string])
	ctx := context.Background()

	_, err := s.Next(ctx)
	require.NoError(t, err)
	v, err := s.Next(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"g1", "g3"}, v)
}

func TestWatch_ShrinkingSetIsAChange(t *testing.T) {
	s := Watch(source(ids("g1", "g2"), ids("g1")), identity, SameIDs[string])
	ctx := context.Background()

	_, err := s.Next(ctx)
	require.NoError(t, err)
	v, err := s.Next(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"g1"}, v)
}

func TestWatch_AppliesQuery(t *testing.T) {
	count := func(s []string) int { return len(s) }
	equal := func(a, b int) bool { return a == b }
	s := Watch(source(ids("a"), ids("b"), ids("a", "b")), count, equal)
	ctx := context.Background()

	first, err := s.Next(ctx)
	require.NoError(t, err)
	second, err := s.Next(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
}

func TestWatch_ErrorsPassThrough(t *testing.T) {
	boom := errors.New("source unavailable")
	s := Watch(source(ids("g1"), step{err: boom}, ids("g1"), ids("g2")), identity, SameIDs[string])
	ctx := context.Background()

	_, err := s.Next(ctx)
	require.NoError(t, err)

	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, boom)

	v, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"g2"}, v, "an error does not reset the last result")
}

func TestWatch_Cancellation(t *testing.T) {
	s := Watch(source(), identity, SameIDs[string])
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := s.Next(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWatch_CloseClosesSource(t *testing.T) {
	src := source()
	s := Watch(src, identity, SameIDs[string])

	s.Close()

	assert.True(t, src.closed)
}

func TestWatch_CancellationClosesSource(t *testing.T) {
	src := source(ids("g1"))
	s := Watch(src, identity, SameIDs[string])
	ctx, cancel := context.WithCancel(context.Background())

	_, err := s.Next(ctx)
	require.NoError(t, err)
	assert.False(t, src.closed, "a delivered result leaves the source open")

	cancel()
	_, err = s.Next(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, src.closed)
}

func TestWatch_UpstreamErrorKeepsSourceOpen(t *testing.T) {
	src := source(step{err: errors.New("boom")})
	s := Watch(src, identity, SameIDs[string])

	_, err := s.Next(context.Background())

	require.Error(t, err)
	assert.False(t, src.closed)
}

func TestWatch_CloseIsIdempotent(t *testing.T) {
	src := source()
	s := Watch(src, identity, SameIDs[string])
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Next(ctx)
	require.ErrorIs(t, err, context.Canceled)
	s.Close()
	s.Close()

	assert.Equal(t, 1, src.closes)
}

func TestStream_AllCancelClosesSource(t *testing.T) {
	src := source(ids("g1"))
	s := Watch(src, identity, SameIDs[string])
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var last error
	for v, err := range s.All(ctx) {
		if err != nil {
			last = err
			break
		}
		assert.Equal(t, []string{"g1"}, v)
		cancel()
	}

	assert.ErrorIs(t, last, context.Canceled)
	assert.True(t, src.closed)
}

func TestStream_All(t *testing.T) {
	s := Watch(source(ids("g1"), ids("g1"), ids("g2")), identity, SameIDs[string])
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got [][]string
	for v, err := range s.All(ctx) {
		require.NoError(t, err)
		got = append(got, v)
		if len(got) == 2 {
			break
		}
	}

	assert.Equal(t, [][]string{{"g1"}, {"g2"}}, got)
}

func TestStream_AllStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	s := Watch(source(ids("g1"), step{err: boom}, ids("g2")), identity, SameIDs[string])

	var errs []error
	for _, err := range s.All(context.Background()) {
		errs = append(errs, err)
	}

	require.Len(t, errs, 2)
	assert.NoError(t, errs[0])
	assert.ErrorIs(t, errs[1], boom)
}

func TestSameIDs(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want bool
	}{
		{"both empty", nil, []string{}, true},
		{"same order", []string{"a", "b"}, []string{"a", "b"}, true},
		{"different order", []string{"a", "b"}, []string{"b", "a"}, true},
		{"duplicates ignored", []string{"a", "a", "b"}, []string{"b", "a"}, true},
		{"extra in b", []string{"a"}, []string{"a", "b"}, false},
		{"extra in a", []string{"a", "b"}, []string{"a"}, false},
		{"disjoint", []string{"a"}, []string{"b"}, false},
		{"empty vs one", nil, []string{"a"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SameIDs(tt.a, tt.b))
			assert.Equal(t, tt.want, SameIDs(tt.b, tt.a), "symmetric")
		})
	}
}

func TestSameIDs_DoesNotReorderInputs(t *testing.T) {
	a := []string{"b", "a"}
	SameIDs(a, []string{"a", "b"})
	assert.False(t, slices.IsSorted(a))
}
