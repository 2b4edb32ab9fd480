// Package view holds the chess game index and the rules that fold events
// into it.
//
// Reduce is the only writer of an Index. It is deterministic for everything
// except GameRecord.LastUpdated, which records when the record was last
// touched by this process. Two replays of the same log therefore agree on
// phase, winner and players, and Digest with WithoutTimestamps lets callers
// check exactly that.
//
// SchemaVersion must be bumped whenever the classify or reduce rules change,
// so persisted snapshots folded with the old rules are discarded and the log
// is replayed from the start.
package view
