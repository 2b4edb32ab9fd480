package harness

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chessdb/internal/event"
	"github.com/roach88/chessdb/internal/view"
)

func TestRun_Scenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)

	for _, path := range paths {
		s, err := LoadScenario(path)
		require.NoError(t, err)

		t.Run(s.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
		})
	}
}

func TestRun_PagedCatchUpMatches(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/f_noise_is_ignored.yaml")
	require.NoError(t, err)

	result, err := RunWithGolden(t, s, WithPageSize(1))
	require.NoError(t, err)
	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
}

func TestRun_Deterministic(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/c_resignation.yaml")
	require.NoError(t, err)
	ctx := context.Background()

	first, err := Run(ctx, s)
	require.NoError(t, err)
	second, err := Run(ctx, s)
	require.NoError(t, err)

	assert.Equal(t, view.Digest(first.Index), view.Digest(second.Index), "last-updated times are deterministic too")
}

func TestRun_FailingAssertions(t *testing.T) {
	s := &Scenario{
		Name:        "wrong_expectations",
		Description: "every assertion is wrong",
		Entries: []Step{
			{Invite: &InviteStep{Game: "g1", By: "A", To: "B", Color: "white"}},
			{Accept: &AcceptStep{Game: "g1", By: "B"}},
		},
		Assertions: []Assertion{
			{Query: QueryAgreed, Player: "A", Expect: []any{}},
			{Query: QuerySent, Player: "A", Expect: []any{map[string]any{"game_id": "g1"}}},
			{Query: QueryHasPlayer, Game: "g1", Player: "A", Expect: false},
			{Query: QueryWeights, Player: "A", Expect: map[string]any{"B": 0.5}},
			{Query: QueryRecord, Game: "g1", Expect: map[string]any{"phase": "ended"}},
			{Query: QueryRecord, Game: "g2", Expect: map[string]any{}},
			{Query: QueryAbsent, Game: "g1"},
		},
	}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, len(s.Assertions))
	assert.Contains(t, result.Errors[0], "Assertion failed: agreed(A)")
	assert.Contains(t, result.Errors[0], "Expected: []")
	assert.Contains(t, result.Errors[0], "Actual: [g1]")
	assert.Contains(t, result.Errors[5], "no record")
}

func TestRun_InvalidRawContent(t *testing.T) {
	s := &Scenario{
		Name:        "bad_raw",
		Description: "raw content must be JSON",
		Entries:     []Step{{Raw: &RawStep{Author: "A", Content: "not json"}}},
		Assertions:  []Assertion{{Query: QueryAll}},
	}

	_, err := Run(context.Background(), s)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "entries[0]: failed to append")
}

func TestCheckProperties_DetectsDivergence(t *testing.T) {
	entries := []event.Entry{
		{ID: "g1", Author: "A", Content: []byte(`{"type":"chess_invite","inviting":"B"}`)},
	}
	wrong := view.Index{"g1": {ID: "g1", Inviter: "A", Invitee: "B", Phase: view.PhaseStarted}}

	errs := CheckProperties(context.Background(), entries, wrong)

	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0], "property replay")
}

func TestCheckProperties_Holds(t *testing.T) {
	entries := []event.Entry{
		{ID: "g1", Author: "A", Content: []byte(`{"type":"chess_invite","inviting":"B"}`)},
		{ID: "e2", Author: "B", Content: []byte(`{"type":"chess_invite_accept","root":"g1"}`)},
		{ID: "g1", Author: "B", Content: []byte(`{"type":"chess_invite","inviting":"A"}`)},
		{ID: "e4", Author: "A", Content: []byte(`{"type":"chess_game_end","root":"g1","status":"mate"}`)},
	}
	final, err := foldPrefix(context.Background(), entries, int64(len(entries)))
	require.NoError(t, err)

	assert.Empty(t, CheckProperties(context.Background(), entries, final))
	assert.Equal(t, view.PhaseEnded, final["g1"].Phase, "a late invite never rewinds the phase")
}

func TestSliceLog_Pages(t *testing.T) {
	entries := make([]event.Entry, 5)
	log := &sliceLog{entries: entries, upto: 4}

	page, err := log.ReadAfter(context.Background(), 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(2), page[0].Seq)
	assert.Equal(t, int64(3), page[1].Seq)

	page, err = log.ReadAfter(context.Background(), 3, 10)
	require.NoError(t, err)
	assert.Len(t, page, 1, "entries past upto are hidden")
}
