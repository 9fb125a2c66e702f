// Package history keeps the navigable URL state of the search view.
package history

import (
	"slices"
	"sync"

	"github.com/kailas-cloud/imagespace/internal/domain/urlstate"
)

// DefaultMaxEntries bounds the history length.
const DefaultMaxEntries = 100

// Entry is one history slot: a route plus its query-string state.
type Entry struct {
	Route string         `json:"route"`
	State urlstate.State `json:"state"`
}

// URL renders the entry as route?query.
func (e Entry) URL() string {
	q := e.State.Encode()
	if q == "" {
		return e.Route
	}
	return e.Route + "?" + q
}

// History is an in-memory navigation history with push/replace semantics.
// Safe for concurrent use: the loop writes it, HTTP handlers read it.
type History struct {
	mu       sync.RWMutex
	entries  []Entry
	max      int
	pushes   int
	replaces int
}

// New creates an empty history holding at most max entries.
func New(max int) *History {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	return &History{max: max}
}

// Navigate appends a new route with a fresh query state.
func (h *History) Navigate(route string, state urlstate.State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.appendLocked(Entry{Route: route, State: state})
}

// Update merges state into the current entry's query state, then either
// replaces the current entry or appends the merged entry.
func (h *History) Update(state urlstate.State, replace bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var cur Entry
	if n := len(h.entries); n > 0 {
		cur = h.entries[n-1]
	}
	next := Entry{Route: cur.Route, State: cur.State.Merge(state)}

	if replace && len(h.entries) > 0 {
		h.entries[len(h.entries)-1] = next
		h.replaces++
		return
	}
	h.appendLocked(next)
}

// Current returns the current entry.
func (h *History) Current() (Entry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.entries) == 0 {
		return Entry{}, false
	}
	return h.entries[len(h.entries)-1], true
}

// Entries returns a copy of the history, oldest first.
func (h *History) Entries() []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.entries)
}

// Counts returns how many pushes and replaces have been applied.
func (h *History) Counts() (pushes, replaces int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.pushes, h.replaces
}

func (h *History) appendLocked(e Entry) {
	h.entries = append(h.entries, e)
	h.pushes++
	if over := len(h.entries) - h.max; over > 0 {
		h.entries = slices.Delete(h.entries, 0, over)
	}
}
