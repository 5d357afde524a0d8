package session

import (
	"strings"
	"sync"
)

// Accumulator owns the growing transcript. Fragments arrive in HTTP response
// resolution order, not capture order, so each one carries the sequence
// number its chunk was produced with; out-of-order arrivals wait in a pending
// map and are committed strictly in sequence. Committed text is only ever
// appended to, never reordered.
type Accumulator struct {
	mu      sync.Mutex
	text    string
	nextSeq int
	pending map[int]string
}

func NewAccumulator() *Accumulator {
	return &Accumulator{
		nextSeq: 1,
		pending: make(map[int]string),
	}
}

// Commit records the fragment for seq and appends every fragment that is now
// in order. Empty fragments (silence, skipped or failed chunks) advance the
// sequence without touching the text. Returns the full transcript and
// whether it changed.
func (a *Accumulator) Commit(seq int, fragment string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.pending[seq] = strings.TrimSpace(fragment)

	changed := false
	for {
		frag, ok := a.pending[a.nextSeq]
		if !ok {
			break
		}
		delete(a.pending, a.nextSeq)
		a.nextSeq++
		if frag == "" {
			continue
		}
		if a.text == "" {
			a.text = frag
		} else {
			a.text = a.text + " " + frag
		}
		changed = true
	}
	return a.text, changed
}

func (a *Accumulator) Text() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.text
}

// Clear wipes the committed text. Sequencing state survives so in-flight
// chunks from the current session still commit in order.
func (a *Accumulator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.text = ""
}
