package harness

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/chessdb/internal/event"
	"github.com/roach88/chessdb/internal/view"
)

// IndexDump is the golden form of a scenario's final index. Last-updated
// times are processing times, so they are left out.
type IndexDump struct {
	ScenarioName string       `json:"scenario_name"`
	Seq          int64        `json:"seq"`
	Games        []DumpRecord `json:"games"`
}

// DumpRecord is a GameRecord without LastUpdated.
type DumpRecord struct {
	GameID       event.GameID   `json:"game_id"`
	Inviter      event.PlayerID `json:"inviter,omitempty"`
	Invitee      event.PlayerID `json:"invitee,omitempty"`
	InviterColor string         `json:"inviter_color,omitempty"`
	Phase        view.Phase     `json:"phase"`
	Terminal     string         `json:"terminal,omitempty"`
	Winner       event.PlayerID `json:"winner,omitempty"`
}

// Dump renders result as indented JSON with games ordered by id and a
// trailing newline.
func Dump(scenarioName string, result *Result) ([]byte, error) {
	dump := IndexDump{
		ScenarioName: scenarioName,
		Seq:          result.Seq,
		Games:        make([]DumpRecord, 0, len(result.Index)),
	}
	for _, id := range result.Index.SortedIDs() {
		rec := result.Index[id]
		dump.Games = append(dump.Games, DumpRecord{
			GameID:       rec.ID,
			Inviter:      rec.Inviter,
			Invitee:      rec.Invitee,
			InviterColor: rec.InviterColor,
			Phase:        rec.Phase,
			Terminal:     rec.Terminal,
			Winner:       rec.Winner,
		})
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(dump); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario and compares the final index against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also inspect assertion failures.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(t.Context(), scenario, opts...)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := Dump(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
