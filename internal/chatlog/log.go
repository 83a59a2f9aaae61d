package chatlog

import (
	"sync"

	"github.com/weiawesome/chatter/internal/domain"
)

// Log is the append-only ordered event log for one joined session. Order is
// arrival order; entries are never edited, removed, or reordered. The log is
// cleared only when the owning session is torn down.
type Log struct {
	mu      sync.RWMutex
	entries []domain.Entry
}

func New() *Log {
	return &Log{
		entries: make([]domain.Entry, 0, 64),
	}
}

// Append adds an entry to the end of the log. It never fails.
// No deduplication by id is performed: a duplicate broadcast delivery
// results in two entries.
func (l *Log) Append(e domain.Entry) {
	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()
}

// Clear empties the log. Invoked only on session teardown.
func (l *Log) Clear() {
	l.mu.Lock()
	l.entries = l.entries[:0]
	l.mu.Unlock()
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Entries returns a copy of the full log.
func (l *Log) Entries() []domain.Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]domain.Entry(nil), l.entries...)
}

// At returns the entry at index i, reporting whether the index is in range.
func (l *Log) At(i int) (domain.Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i < 0 || i >= len(l.entries) {
		return domain.Entry{}, false
	}
	return l.entries[i], true
}

// Slice returns a copy of entries in [start, end).
func (l *Log) Slice(start, end int) []domain.Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if start < 0 {
		start = 0
	}
	if end > len(l.entries) {
		end = len(l.entries)
	}
	if start >= end {
		return nil
	}
	return append([]domain.Entry(nil), l.entries[start:end]...)
}
