package bank

import (
	"sort"
	"sync"
)

// #region interface

// Bank is the keyed store of per-session (hidden, cell) state snapshots.
// All vectors crossing this boundary are detached copies: a caller can never
// mutate a committed snapshot through a returned slice.
type Bank interface {
	// Store commits the state pair for a session, replacing any prior entry.
	Store(sessionID string, hidden, cell []float64) error
	// Retrieve returns the committed state pair, or ok=false for an unseen
	// session. Absence is not an error.
	Retrieve(sessionID string) (hidden, cell []float64, ok bool, err error)
	// Delete removes a session's state. Returns false when the session was
	// never stored; that is a no-op, not an error.
	Delete(sessionID string) (bool, error)
	// ListSessions returns all session IDs with stored state.
	ListSessions() ([]string, error)
	// Clear removes all stored state.
	Clear() error
}

// #endregion interface

// #region memory-bank

type snapshot struct {
	hidden []float64
	cell   []float64
}

// MemoryBank is the in-process Bank implementation.
type MemoryBank struct {
	mu        sync.RWMutex
	snapshots map[string]snapshot
}

// NewMemoryBank creates an empty in-memory bank.
func NewMemoryBank() *MemoryBank {
	return &MemoryBank{snapshots: make(map[string]snapshot)}
}

// Store commits copies of the given state pair.
func (b *MemoryBank) Store(sessionID string, hidden, cell []float64) error {
	h := make([]float64, len(hidden))
	c := make([]float64, len(cell))
	copy(h, hidden)
	copy(c, cell)

	b.mu.Lock()
	b.snapshots[sessionID] = snapshot{hidden: h, cell: c}
	b.mu.Unlock()
	return nil
}

// Retrieve returns copies of the committed state pair.
func (b *MemoryBank) Retrieve(sessionID string) ([]float64, []float64, bool, error) {
	b.mu.RLock()
	snap, ok := b.snapshots[sessionID]
	b.mu.RUnlock()
	if !ok {
		return nil, nil, false, nil
	}

	h := make([]float64, len(snap.hidden))
	c := make([]float64, len(snap.cell))
	copy(h, snap.hidden)
	copy(c, snap.cell)
	return h, c, true, nil
}

// Delete removes a session's state, reporting whether it existed.
func (b *MemoryBank) Delete(sessionID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.snapshots[sessionID]; !ok {
		return false, nil
	}
	delete(b.snapshots, sessionID)
	return true, nil
}

// ListSessions returns session IDs in sorted order.
func (b *MemoryBank) ListSessions() ([]string, error) {
	b.mu.RLock()
	ids := make([]string, 0, len(b.snapshots))
	for id := range b.snapshots {
		ids = append(ids, id)
	}
	b.mu.RUnlock()
	sort.Strings(ids)
	return ids, nil
}

// Clear removes all stored state.
func (b *MemoryBank) Clear() error {
	b.mu.Lock()
	b.snapshots = make(map[string]snapshot)
	b.mu.Unlock()
	return nil
}

// #endregion memory-bank
