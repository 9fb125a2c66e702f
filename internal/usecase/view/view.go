// Package view binds the active result collection to a renderer and keeps the
// status indicator and URL state in step with it.
package view

import (
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/imagespace/internal/collection"
	"github.com/kailas-cloud/imagespace/internal/domain"
	"github.com/kailas-cloud/imagespace/internal/domain/viewmode"
	"github.com/kailas-cloud/imagespace/internal/metrics"
	"github.com/kailas-cloud/imagespace/internal/usecase/orchestrator"
	"github.com/kailas-cloud/imagespace/internal/usecase/querysync"
	"github.com/kailas-cloud/imagespace/internal/usecase/status"
)

// View renders one navigation's collection. Every method except Snapshot and
// Ready must be called on the event loop.
type View struct {
	nav      orchestrator.Navigation
	current  func() bool
	coll     *collection.Collection
	sync     *querysync.Sync
	status   *status.Indicator
	renderer Renderer
	logger   *zap.Logger

	viewMode  viewmode.Mode
	renders   int
	unsub     []func()
	destroyed bool

	ready    chan struct{}
	readyErr error

	mu   sync.RWMutex
	last *Snapshot
	err  error
}

// New creates a view for nav. current reports whether nav's search is still
// the active one; once it is not, the view stops touching shared UI state.
// Nothing is fetched until Start.
func New(
	nav orchestrator.Navigation,
	current func() bool,
	qs *querysync.Sync,
	indicator *status.Indicator,
	renderer Renderer,
	logger *zap.Logger,
) *View {
	mode := nav.ViewMode
	if !mode.IsValid() {
		mode = viewmode.Default
	}
	sessionID := ""
	if nav.Session != nil {
		sessionID = nav.Session.ID()
	}
	return &View{
		nav:      nav,
		current:  current,
		coll:     nav.Collection,
		sync:     qs,
		status:   indicator,
		renderer: renderer,
		logger:   logger.With(zap.String("session_id", sessionID), zap.String("collection_id", nav.Collection.ID())),
		viewMode: mode,
		ready:    make(chan struct{}),
	}
}

// Session returns the search session the view belongs to.
func (v *View) Session() *orchestrator.Session { return v.nav.Session }

// Collection returns the bound collection.
func (v *View) Collection() *collection.Collection { return v.coll }

// Start subscribes to the collection and issues the initial fetch.
func (v *View) Start() {
	v.unsub = append(v.unsub,
		v.coll.OnChange(v.onChange),
		v.coll.OnError(v.onError),
	)
	if !v.coll.Fetch(v.coll.Params, false) && v.coll.Fetched() {
		v.onChange(v.coll)
	}
}

// Ready is closed once the first fetch resolves or the view is destroyed.
func (v *View) Ready() <-chan struct{} { return v.ready }

// ReadyErr is the outcome that closed Ready. Only valid after Ready is closed.
func (v *View) ReadyErr() error { return v.readyErr }

// Snapshot returns the last rendered snapshot. Safe from any goroutine.
func (v *View) Snapshot() (Snapshot, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.last == nil {
		return Snapshot{}, false
	}
	return *v.last, true
}

// Err returns the last fetch failure, cleared by the next successful render.
// Safe from any goroutine.
func (v *View) Err() error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.err
}

// ChangeClassifications narrows the results to the selected keys. The status
// indicator stays up until the forced fetch resolves.
func (v *View) ChangeClassifications(selected []string) bool {
	if v.inert() {
		return false
	}
	v.status.Show(status.Narrowing)
	return v.sync.SetClassifications(v.coll, selected)
}

// GoToPage fetches the 1-based page n.
func (v *View) GoToPage(n int) bool {
	if v.inert() {
		return false
	}
	return v.coll.FetchPage(n - 1)
}

// Next advances one page.
func (v *View) Next() bool {
	return !v.inert() && v.coll.FetchNextPage()
}

// Prev goes back one page.
func (v *View) Prev() bool {
	return !v.inert() && v.coll.FetchPreviousPage()
}

// SetViewMode switches between list and grid and re-renders.
func (v *View) SetViewMode(mode viewmode.Mode) {
	if v.inert() || mode == v.viewMode {
		return
	}
	v.viewMode = mode
	if v.coll.Fetched() {
		v.render()
	}
}

// Destroy unsubscribes and closes the collection, cancelling its fetches.
func (v *View) Destroy() {
	if v.destroyed {
		return
	}
	v.destroyed = true
	for _, fn := range v.unsub {
		fn()
	}
	v.unsub = nil
	v.coll.Close()
	v.markReady(domain.ErrSuperseded)
}

// Superseded reports whether a newer search has replaced this view's search.
func (v *View) Superseded() bool { return v.inert() }

func (v *View) inert() bool {
	return v.destroyed || !v.current()
}

// stale drops a completion that must not reach the UI: one from a foreign
// collection, or any completion once the view's search is superseded.
func (v *View) stale(c *collection.Collection) bool {
	if c == v.coll && !v.inert() {
		return false
	}
	metrics.StaleCompletionsTotal.WithLabelValues("render").Inc()
	v.logger.Debug("Ignoring change from a replaced search")
	if c == v.coll {
		v.markReady(domain.ErrSuperseded)
	}
	return true
}

func (v *View) onChange(c *collection.Collection) {
	if v.stale(c) {
		return
	}
	v.render()
	v.sync.OnChange(c)
	v.status.Hide()
	v.markReady(nil)
}

func (v *View) onError(c *collection.Collection, err error) {
	if v.stale(c) {
		return
	}
	v.mu.Lock()
	v.err = err
	v.mu.Unlock()
	v.logger.Warn("Result fetch failed", zap.Error(err))
	v.markReady(err)
}

// render redraws the whole view from the collection.
func (v *View) render() {
	v.renders++
	snap := Snapshot{
		Render:          v.renders,
		ViewMode:        v.viewMode,
		Header:          headerOf(v.nav),
		Results:         resultsOf(v.coll),
		Paging:          pagingOf(v.coll),
		Classifications: append([]string{}, v.coll.Params.Classifications...),
	}
	if v.nav.Session != nil {
		snap.SessionID = v.nav.Session.ID()
	}

	v.mu.Lock()
	v.last = &snap
	v.err = nil
	v.mu.Unlock()

	v.renderer.Render(snap)
}

func (v *View) markReady(err error) {
	select {
	case <-v.ready:
		return
	default:
	}
	v.readyErr = err
	close(v.ready)
}
