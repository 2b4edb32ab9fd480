// Package engine maintains the versioned chess game index over a log.
//
// ARCHITECTURE:
//
// Single-Writer Fold:
// IndexStore owns the only mutable view.Index. Every fold step (classify an
// entry, reduce it into the index) happens while holding IndexStore.mu, one
// entry at a time, in log order. Readers never see the mutable index; each
// successful catch-up publishes a frozen copy as a Snapshot.
//
// Catch-up Flow:
//  1. Snapshot() joins or starts the single in-flight catch-up (singleflight)
//  2. On first use the persisted snapshot is loaded; a schema version other
//     than view.SchemaVersion discards it and the log is replayed from seq 0
//  3. Entries after the last folded seq are read page by page and folded
//  4. The new index is persisted, then published to waiters and subscribers
//
// Live Tail:
// Run() waits on the log's Notify signal and catches up on every tick, so
// subscribers receive updates without polling.
//
// CRITICAL PATTERNS:
//
// Version-Gated Rebuild:
// Bumping view.SchemaVersion is the only way to force a full replay.
//
// No Partial Results:
// A failed log or snapshot read returns a *IndexError with code
// SOURCE_UNAVAILABLE. The failure is never retried here; the published
// snapshot stays at the last consistent log prefix.
package engine
