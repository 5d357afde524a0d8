package session

import (
	"strings"
	"sync"

	"github.com/kotonoha-lab/kikitori/internal/annotator"
)

// Merger accumulates annotation entries across calls. Identity is the
// lowercase surface: the first entry for a surface wins and is never updated
// or removed.
type Merger struct {
	mu      sync.Mutex
	entries []annotator.Entry
	index   map[string]int
}

func NewMerger() *Merger {
	return &Merger{index: make(map[string]int)}
}

// Add inserts every entry whose lowercase surface is not already present and
// returns how many were inserted.
func (m *Merger) Add(entries []annotator.Entry) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	inserted := 0
	for _, entry := range entries {
		key := strings.ToLower(entry.Surface)
		if key == "" {
			continue
		}
		if _, exists := m.index[key]; exists {
			continue
		}
		m.index[key] = len(m.entries)
		m.entries = append(m.entries, entry)
		inserted++
	}
	return inserted
}

// Entries returns a copy of the merged collection in insertion order.
func (m *Merger) Entries() []annotator.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]annotator.Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

func (m *Merger) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Merger) lookup(word string) (annotator.Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.index[strings.ToLower(word)]
	if !ok {
		return annotator.Entry{}, false
	}
	return m.entries[idx], true
}

// Reset drops all merged entries; used only by the explicit user clear.
func (m *Merger) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	m.index = make(map[string]int)
}
