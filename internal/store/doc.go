// Package store provides SQLite-backed durable storage for the chess entry
// log and the persisted game index.
//
// The store implements:
//   - Entries: the append-only log (engine.Log)
//   - Snapshots: one versioned index snapshot per view (engine.SnapshotStore)
//
// # Critical Patterns
//
// Logical Ordering:
//   - All ordering uses seq INTEGER, NEVER timestamps
//   - ReadAfter is ORDER BY seq ASC, so folds see entries in append order
//
// Idempotent Appends:
//   - UNIQUE(id) with ON CONFLICT DO NOTHING
//   - Re-appending an entry id returns the stored entry unchanged
//
// Verified Snapshots:
//   - The payload digest (view.Digest) is stored beside it and recomputed
//     on load; a mismatch is treated as no snapshot
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
