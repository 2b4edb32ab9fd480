package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/chessdb/internal/event"
	"github.com/roach88/chessdb/internal/service"
	"github.com/roach88/chessdb/internal/view"
)

// weightTolerance is the absolute tolerance for weights assertions.
const weightTolerance = 1e-9

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Query    string
	Args     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s(%s)\n", e.Query, e.Args)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// EvaluateAssertions runs every assertion and returns failure messages.
// Query errors are reported as failures of the assertion that hit them.
func EvaluateAssertions(ctx context.Context, svc *service.Service, idx view.Index, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(ctx, svc, idx, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}

func evaluate(ctx context.Context, svc *service.Service, idx view.Index, a Assertion) error {
	player := event.PlayerID(a.Player)
	game := event.GameID(a.Game)

	switch a.Query {
	case QuerySent, QueryReceived:
		get := svc.PendingChallengesSent
		if a.Query == QueryReceived {
			get = svc.PendingChallengesReceived
		}
		got, err := get(ctx, player)
		if err != nil {
			return err
		}
		return assertObjects(a, toGeneric(got))

	case QueryAgreed:
		got, err := svc.GamesAgreedToPlayIDs(ctx, player)
		if err != nil {
			return err
		}
		return assertIDSet(a, got)

	case QueryObservable:
		got, err := svc.ObservableGames(ctx, player)
		if err != nil {
			return err
		}
		return assertIDSet(a, got)

	case QueryFinished:
		seq, err := svc.FinishedGames(ctx, player)
		if err != nil {
			return err
		}
		return assertIDSet(a, slices.Collect(seq))

	case QueryAll:
		seq, err := svc.AllGameIDs(ctx)
		if err != nil {
			return err
		}
		return assertIDSet(a, slices.Collect(seq))

	case QueryHasPlayer:
		got, err := svc.GameHasPlayer(ctx, game, player)
		if err != nil {
			return err
		}
		want, ok := a.Expect.(bool)
		if !ok {
			return fmt.Errorf("has_player: expect must be a bool, got %T", a.Expect)
		}
		if got != want {
			return failure(a, fmt.Sprint(want), fmt.Sprint(got))
		}
		return nil

	case QueryWeights:
		got, err := svc.WeightedPlayFrequency(ctx, player)
		if err != nil {
			return err
		}
		return assertWeights(a, got)

	case QueryRecord:
		rec, ok := idx[game]
		if !ok {
			return failure(a, "record present", "no record")
		}
		return assertObjects(a, toGeneric(rec))

	case QueryAbsent:
		if rec, ok := idx[game]; ok {
			return failure(a, "no record", fmt.Sprintf("%+v", rec))
		}
		return nil
	}
	return fmt.Errorf("unknown query %q", a.Query)
}

func failure(a Assertion, expected, actual string) *AssertionError {
	var args []string
	if a.Game != "" {
		args = append(args, a.Game)
	}
	if a.Player != "" {
		args = append(args, a.Player)
	}
	return &AssertionError{
		Query:    a.Query,
		Args:     strings.Join(args, ", "),
		Expected: expected,
		Actual:   actual,
	}
}

// assertIDSet compares ids as a set. A missing expect means empty.
func assertIDSet(a Assertion, got []event.GameID) error {
	want, err := stringList(a.Expect)
	if err != nil {
		return err
	}
	actual := make([]string, len(got))
	for i, id := range got {
		actual[i] = string(id)
	}
	sort.Strings(want)
	sort.Strings(actual)
	if !slices.Equal(want, actual) {
		return failure(a, fmt.Sprint(want), fmt.Sprint(actual))
	}
	return nil
}

// assertObjects subset-matches expected fields against got, which is a
// JSON-shaped object or list of objects.
func assertObjects(a Assertion, got any) error {
	want := a.Expect
	if want == nil {
		want = []any{}
	}
	if !subsetMatch(normalize(want), got) {
		return failure(a, compact(want), compact(got))
	}
	return nil
}

func assertWeights(a Assertion, got map[event.PlayerID]float64) error {
	want := map[string]float64{}
	if a.Expect != nil {
		m, ok := a.Expect.(map[string]any)
		if !ok {
			return fmt.Errorf("weights: expect must be a map, got %T", a.Expect)
		}
		for k, v := range m {
			f, ok := toFloat(v)
			if !ok {
				return fmt.Errorf("weights: %q is not a number", k)
			}
			want[k] = f
		}
	}

	mismatch := len(want) != len(got)
	for k, w := range want {
		g, ok := got[event.PlayerID(k)]
		if !ok || math.Abs(g-w) > weightTolerance {
			mismatch = true
		}
	}
	if mismatch {
		return failure(a, fmt.Sprint(want), fmt.Sprint(got))
	}
	return nil
}

func stringList(v any) ([]string, error) {
	if v == nil {
		return []string{}, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expect must be a list of ids, got %T", v)
	}
	out := make([]string, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("expect[%d] is not a string", i)
		}
		out[i] = s
	}
	return out, nil
}

// toGeneric round-trips v through JSON so it can be compared with values
// decoded from YAML.
func toGeneric(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

// normalize converts YAML scalars to their JSON equivalents.
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	default:
		if f, ok := toFloat(v); ok {
			return f
		}
		return v
	}
}

// subsetMatch reports whether every field in expected has an equal value in
// actual. Lists must have the same length and match element-wise.
func subsetMatch(expected, actual any) bool {
	switch want := expected.(type) {
	case map[string]any:
		got, ok := actual.(map[string]any)
		if !ok {
			return false
		}
		for k, v := range want {
			if !subsetMatch(v, got[k]) {
				return false
			}
		}
		return true
	case []any:
		got, ok := actual.([]any)
		if !ok {
			// A nil slice marshals as null.
			return len(want) == 0 && actual == nil
		}
		if len(want) != len(got) {
			return false
		}
		for i := range want {
			if !subsetMatch(want[i], got[i]) {
				return false
			}
		}
		return true
	case string:
		// An empty expected string matches an omitted field.
		if want == "" && actual == nil {
			return true
		}
		return reflect.DeepEqual(want, actual)
	default:
		return reflect.DeepEqual(want, actual)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func compact(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
