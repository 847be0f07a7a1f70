package journal

import (
	"context"
	"sync"
)

// MemoryJournal keeps the most recent entries in a ring.
type MemoryJournal struct {
	mu      sync.RWMutex
	entries []Entry
	max     int
}

// NewMemoryJournal creates a journal holding at most max entries (default 1000).
func NewMemoryJournal(max int) *MemoryJournal {
	if max <= 0 {
		max = 1000
	}
	return &MemoryJournal{max: max}
}

// Record appends e, dropping the oldest entry when full.
func (m *MemoryJournal) Record(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	if len(m.entries) > m.max {
		m.entries = m.entries[len(m.entries)-m.max:]
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (m *MemoryJournal) Recent(_ context.Context, limit int) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.entries) {
		limit = len(m.entries)
	}
	out := make([]Entry, 0, limit)
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

// CountByKind tallies entries per failure kind.
func (m *MemoryJournal) CountByKind(_ context.Context) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[string]int)
	for _, e := range m.entries {
		counts[e.Kind]++
	}
	return counts, nil
}

// Close is a no-op.
func (m *MemoryJournal) Close() error { return nil }
