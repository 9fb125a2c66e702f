// Package status is the in-progress indicator shown while a search is running.
package status

import "sync"

// Status texts.
const (
	Searching     = "Searching"
	Computing     = "Computing features"
	Narrowing     = "Narrowing results"
	performingFmt = "Performing %s search"
)

// Indicator is a single status line. It is written from the event loop and
// read by HTTP handlers.
type Indicator struct {
	mu      sync.RWMutex
	text    string
	visible bool
	shown   int
}

// Snapshot is the indicator's observable state.
type Snapshot struct {
	Text    string `json:"text,omitempty"`
	Visible bool   `json:"visible"`
}

// New creates a hidden indicator.
func New() *Indicator {
	return &Indicator{}
}

// Show makes text the visible status, replacing whatever was shown.
func (i *Indicator) Show(text string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.text = text
	i.visible = true
	i.shown++
}

// Hide hides the indicator. The last text is kept for diagnostics.
func (i *Indicator) Hide() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.visible = false
}

// Current returns the indicator state.
func (i *Indicator) Current() Snapshot {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return Snapshot{Text: i.text, Visible: i.visible}
}

// ShowCount returns how many times Show has been called.
func (i *Indicator) ShowCount() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.shown
}
