package engine

import (
	"context"
	"sync"

	"github.com/roach88/chessdb/internal/view"
)

// MemorySnapshots is an in-process SnapshotStore. The replay command uses it
// so a determinism check never touches the persisted snapshot.
type MemorySnapshots struct {
	mu    sync.Mutex
	p     view.Persisted
	ok    bool
	saves int
}

// LoadSnapshot returns a copy of the last saved snapshot.
func (m *MemorySnapshots) LoadSnapshot(_ context.Context) (view.Persisted, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.ok {
		return view.Persisted{}, false, nil
	}
	p := m.p
	p.Index = p.Index.Clone()
	return p, true, nil
}

// SaveSnapshot stores a copy of p.
func (m *MemorySnapshots) SaveSnapshot(_ context.Context, p view.Persisted) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p.Index = p.Index.Clone()
	m.p = p
	m.ok = true
	m.saves++
	return nil
}

// Saves returns how many times SaveSnapshot was called.
func (m *MemorySnapshots) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
