package orchestrator

import (
	"sync"

	"github.com/kailas-cloud/imagespace/internal/collection"
	"github.com/kailas-cloud/imagespace/internal/domain/image"
	"github.com/kailas-cloud/imagespace/internal/domain/query"
	"github.com/kailas-cloud/imagespace/internal/domain/viewmode"
)

// Navigation is the "navigate to search results" message: the sole hand-off
// from the orchestrator to the result view.
type Navigation struct {
	Session    *Session
	Query      query.SearchQuery
	Collection *collection.Collection
	// Image is set for image searches.
	Image    *image.Image
	URL      string
	Mode     string
	ModeName string
	ViewMode viewmode.Mode
}

// Navigator delivers navigations to the view host. It holds at most one
// undelivered navigation: publishing replaces a pending one, since only the
// latest search may reach the view.
type Navigator struct {
	mu sync.Mutex
	ch chan Navigation
}

// NewNavigator creates an empty navigator.
func NewNavigator() *Navigator {
	return &Navigator{ch: make(chan Navigation, 1)}
}

// C returns the delivery channel. Each navigation is received exactly once.
func (n *Navigator) C() <-chan Navigation {
	return n.ch
}

// Publish queues nav and returns the undelivered navigation it displaced, if any.
func (n *Navigator) Publish(nav Navigation) (displaced *Navigation) {
	n.mu.Lock()
	defer n.mu.Unlock()

	select {
	case old := <-n.ch:
		displaced = &old
	default:
	}
	n.ch <- nav
	return displaced
}
