package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/chessdb/internal/event"
)

// Scenario is a log to append and the expectations on the resulting index.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files are keyed by it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Entries are appended to a fresh log in order.
	Entries []Step `yaml:"entries"`

	// Assertions are evaluated against the index after all entries are folded.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one log entry. Exactly one of Invite, Accept, End or Raw is set.
type Step struct {
	Invite *InviteStep `yaml:"invite,omitempty"`
	Accept *AcceptStep `yaml:"accept,omitempty"`
	End    *EndStep    `yaml:"end,omitempty"`
	Raw    *RawStep    `yaml:"raw,omitempty"`
}

// InviteStep appends a chess_invite whose entry id is Game.
type InviteStep struct {
	Game  string `yaml:"game"`
	By    string `yaml:"by"`
	To    string `yaml:"to"`
	Color string `yaml:"color,omitempty"`
}

// AcceptStep appends a chess_invite_accept for Game.
type AcceptStep struct {
	Game string `yaml:"game"`
	By   string `yaml:"by"`
}

// EndStep appends a chess_game_end for Game.
type EndStep struct {
	Game   string `yaml:"game"`
	Status string `yaml:"status"`
	By     string `yaml:"by"`
}

// RawStep appends arbitrary content, e.g. entries the classifier drops.
type RawStep struct {
	ID      string `yaml:"id,omitempty"`
	Author  string `yaml:"author"`
	Content string `yaml:"content"`
}

// Assertion checks one query result or record.
type Assertion struct {
	// Query is one of the Query* constants.
	Query string `yaml:"query"`

	// Player is the query argument for per-player queries.
	Player string `yaml:"player,omitempty"`

	// Game is the query argument for has_player, record and absent.
	Game string `yaml:"game,omitempty"`

	// Expect is the expected value. Its shape depends on Query:
	//   - id queries: a list of game ids, compared as a set
	//   - sent, received: a list of invite summaries, subset-matched in order
	//   - has_player: a bool
	//   - weights: a map of opponent to weight
	//   - record: a map of record fields, subset-matched
	Expect any `yaml:"expect,omitempty"`
}

// Query names understood by assertions.
const (
	QuerySent       = "sent"
	QueryReceived   = "received"
	QueryAgreed     = "agreed"
	QueryObservable = "observable"
	QueryFinished   = "finished"
	QueryAll        = "all"
	QueryHasPlayer  = "has_player"
	QueryWeights    = "weights"
	QueryRecord     = "record"
	QueryAbsent     = "absent"
)

var perPlayer = map[string]bool{
	QuerySent:       true,
	QueryReceived:   true,
	QueryAgreed:     true,
	QueryObservable: true,
	QueryFinished:   true,
	QueryHasPlayer:  true,
	QueryWeights:    true,
}

var perGame = map[string]bool{
	QueryHasPlayer: true,
	QueryRecord:    true,
	QueryAbsent:    true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Entries {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("entries[%d]: %w", i, err)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}

	return nil
}

func validateStep(step Step) error {
	set := 0
	for _, present := range []bool{step.Invite != nil, step.Accept != nil, step.End != nil, step.Raw != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("exactly one of invite, accept, end or raw is required")
	}

	switch {
	case step.Invite != nil:
		if step.Invite.Game == "" || step.Invite.By == "" {
			return fmt.Errorf("invite: game and by are required")
		}
	case step.Accept != nil:
		if step.Accept.By == "" {
			return fmt.Errorf("accept: by is required")
		}
	case step.End != nil:
		if step.End.By == "" {
			return fmt.Errorf("end: by is required")
		}
	case step.Raw != nil:
		if step.Raw.Author == "" {
			return fmt.Errorf("raw: author is required")
		}
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Query {
	case QuerySent, QueryReceived, QueryAgreed, QueryObservable, QueryFinished,
		QueryAll, QueryHasPlayer, QueryWeights, QueryRecord, QueryAbsent:
	case "":
		return fmt.Errorf("query is required")
	default:
		return fmt.Errorf("unknown query %q", a.Query)
	}

	if perPlayer[a.Query] && a.Player == "" {
		return fmt.Errorf("%s: player is required", a.Query)
	}
	if perGame[a.Query] && a.Game == "" {
		return fmt.Errorf("%s: game is required", a.Query)
	}
	if a.Query == QueryHasPlayer {
		if _, ok := a.Expect.(bool); !ok {
			return fmt.Errorf("has_player: expect must be a bool")
		}
	}
	return nil
}

// Entry converts the step to a log entry. Invite steps use the game as the
// entry id so later steps can refer to it.
func (s Step) Entry() (event.Entry, error) {
	var (
		id      string
		author  string
		content any
	)
	switch {
	case s.Invite != nil:
		id, author = s.Invite.Game, s.Invite.By
		body := map[string]string{"type": event.TypeInvite, "inviting": s.Invite.To}
		if s.Invite.Color != "" {
			body["myColor"] = s.Invite.Color
		}
		content = body
	case s.Accept != nil:
		author = s.Accept.By
		content = map[string]string{"type": event.TypeAccept, "root": s.Accept.Game}
	case s.End != nil:
		author = s.End.By
		content = map[string]string{"type": event.TypeEnd, "root": s.End.Game, "status": s.End.Status}
	case s.Raw != nil:
		return event.Entry{
			ID:      s.Raw.ID,
			Author:  event.PlayerID(s.Raw.Author),
			Content: json.RawMessage(s.Raw.Content),
		}, nil
	default:
		return event.Entry{}, fmt.Errorf("empty step")
	}

	raw, err := json.Marshal(content)
	if err != nil {
		return event.Entry{}, fmt.Errorf("marshal step: %w", err)
	}
	return event.Entry{ID: id, Author: event.PlayerID(author), Content: raw}, nil
}
