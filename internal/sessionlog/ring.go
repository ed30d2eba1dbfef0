package sessionlog

import "sync"

// DefaultRingSize bounds the warnings kept for display.
const DefaultRingSize = 50

// Ring keeps the most recent entries. Its Add method is an EntryCallback.
type Ring struct {
	mu       sync.Mutex
	entries  []Entry
	next     int
	full     bool
	listener func(Entry)
}

// NewRing returns a ring holding up to size entries. size <= 0 selects
// DefaultRingSize.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Ring{entries: make([]Entry, size)}
}

// OnAdd sets a listener called for every new entry, outside the ring's lock.
func (r *Ring) OnAdd(fn func(Entry)) {
	r.mu.Lock()
	r.listener = fn
	r.mu.Unlock()
}

// Add records e, evicting the oldest entry when full.
func (r *Ring) Add(e Entry) {
	r.mu.Lock()
	r.entries[r.next] = e
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
	listener := r.listener
	r.mu.Unlock()

	if listener != nil {
		listener(e)
	}
}

// Entries returns the held entries, oldest first.
func (r *Ring) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]Entry(nil), r.entries[:r.next]...)
	}
	out := make([]Entry, 0, len(r.entries))
	out = append(out, r.entries[r.next:]...)
	return append(out, r.entries[:r.next]...)
}

// Lines renders Entries with Entry.Text.
func (r *Ring) Lines() []string {
	entries := r.Entries()
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.Text()
	}
	return lines
}

// Clear drops every entry.
func (r *Ring) Clear() {
	r.mu.Lock()
	clear(r.entries)
	r.next = 0
	r.full = false
	r.mu.Unlock()
}
