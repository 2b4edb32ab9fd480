// Package harness runs YAML scenarios against the game index.
//
// A scenario appends entries to a fresh in-memory store, folds them into an
// index and checks query results. Every run also verifies the properties
// that hold for any log: replay gives the same index, phases only move
// forward and started games are observable by outsiders.
//
// # Scenario Format
//
//	name: resign_gives_win_to_opponent
//	description: "The player who resigns loses"
//	entries:
//	  - invite: { game: g1, by: A, to: B, color: white }
//	  - accept: { game: g1, by: B }
//	  - end:    { game: g1, status: resigned, by: A }
//	  - raw:    { author: A, content: '{"type":"post","text":"gg"}' }
//	assertions:
//	  - query: finished
//	    player: A
//	    expect: [g1]
//	  - query: record
//	    game: g1
//	    expect: { phase: ended, winner: B }
//
// Invite steps use the game as the entry id. Raw content must be JSON; the
// store rejects anything else.
//
// # Queries
//
//   - sent, received: pending invites, subset-matched in order
//   - agreed, observable, finished, all: game ids, compared as a set
//   - has_player: bool
//   - weights: opponent weights
//   - record, absent: the raw index record for a game
//
// # Deterministic Testing
//
// Entry ids come from a sequence generator and last-updated times from a
// stepping clock, so golden dumps are stable across runs. Golden dumps leave
// out last-updated times anyway.
package harness
