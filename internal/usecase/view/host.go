package view

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/imagespace/internal/domain"
	"github.com/kailas-cloud/imagespace/internal/domain/viewmode"
	"github.com/kailas-cloud/imagespace/internal/metrics"
	"github.com/kailas-cloud/imagespace/internal/usecase/orchestrator"
	"github.com/kailas-cloud/imagespace/internal/usecase/querysync"
)

// PreferenceWriter persists the view mode.
type PreferenceWriter interface {
	SetViewMode(ctx context.Context, mode viewmode.Mode) error
}

// Host owns the single active view. It consumes navigations from the
// orchestrator and exposes the view to callers on other goroutines.
type Host struct {
	app      *orchestrator.AppContext
	sync     *querysync.Sync
	prefs    PreferenceWriter
	renderer Renderer
	logger   *zap.Logger

	// loop only
	view *View
}

// NewHost creates a view host.
func NewHost(
	app *orchestrator.AppContext,
	prefs PreferenceWriter,
	renderer Renderer,
	logger *zap.Logger,
) *Host {
	return &Host{
		app:      app,
		sync:     querysync.New(app.History, logger),
		prefs:    prefs,
		renderer: renderer,
		logger:   logger,
	}
}

// Run hands every navigation to the loop until ctx is done.
func (h *Host) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case nav := <-h.app.Navigator.C():
			h.app.Loop.Post(func() { h.show(nav) })
		}
	}
}

// show replaces the active view. A navigation whose session was superseded
// while it was queued is dropped and its collection closed.
func (h *Host) show(nav orchestrator.Navigation) {
	if !h.app.IsCurrent(nav.Session) {
		nav.Collection.Close()
		metrics.StaleCompletionsTotal.WithLabelValues("navigation").Inc()
		h.logger.Debug("Dropping navigation for a superseded search")
		return
	}

	if h.view != nil {
		h.view.Destroy()
	}
	current := func() bool { return h.app.IsCurrent(nav.Session) }
	v := New(nav, current, h.sync, h.app.Status, h.renderer, h.logger)
	h.view = v
	h.app.Bind(nav.Session)
	v.Start()
}

// Await waits until sess is bound and its view has finished the first fetch,
// then returns the rendered snapshot.
func (h *Host) Await(ctx context.Context, sess *orchestrator.Session) (Snapshot, error) {
	if err := sess.Wait(ctx); err != nil {
		return Snapshot{}, err
	}

	var v *View
	if err := h.app.Loop.Call(ctx, func() {
		if h.view != nil && h.view.Session() == sess {
			v = h.view
		}
	}); err != nil {
		return Snapshot{}, fmt.Errorf("find view: %w", err)
	}
	if v == nil {
		return Snapshot{}, domain.ErrSuperseded
	}

	select {
	case <-v.Ready():
	case <-ctx.Done():
		return Snapshot{}, fmt.Errorf("wait for results: %w", ctx.Err())
	}
	if err := v.ReadyErr(); err != nil {
		return Snapshot{}, err
	}
	snap, _ := v.Snapshot()
	return snap, nil
}

// Snapshot returns the active view's last rendering.
func (h *Host) Snapshot(ctx context.Context) (Snapshot, error) {
	v, err := h.active(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	snap, ok := v.Snapshot()
	if !ok {
		if err := v.Err(); err != nil {
			return Snapshot{}, err
		}
		return Snapshot{}, domain.ErrNoActiveSearch
	}
	return snap, nil
}

// GoToPage fetches the 1-based page n and waits for it to render. A non-nil
// sess pins the call to that search; nil targets whichever search is active.
func (h *Host) GoToPage(ctx context.Context, sess *orchestrator.Session, n int) (Snapshot, error) {
	if n < 1 {
		return Snapshot{}, fmt.Errorf("%w: page %d", domain.ErrInvalidQuery, n)
	}
	return h.mutate(ctx, sess, func(v *View) bool { return v.GoToPage(n) })
}

// ChangeClassifications narrows the results and waits for the forced fetch.
// sess pins the call as for GoToPage.
func (h *Host) ChangeClassifications(ctx context.Context, sess *orchestrator.Session, keys []string) (Snapshot, error) {
	return h.mutate(ctx, sess, func(v *View) bool { return v.ChangeClassifications(keys) })
}

// SetViewMode persists mode and re-renders the active view, if any.
func (h *Host) SetViewMode(ctx context.Context, mode viewmode.Mode) error {
	if !mode.IsValid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidViewMode, mode)
	}
	if err := h.prefs.SetViewMode(ctx, mode); err != nil {
		return fmt.Errorf("save view mode: %w", err)
	}
	if err := h.app.Loop.Call(ctx, func() {
		if h.view != nil {
			h.view.SetViewMode(mode)
		}
	}); err != nil {
		return fmt.Errorf("apply view mode: %w", err)
	}
	return nil
}

// active returns the bound view. A view whose search was superseded by one
// still resolving is reported as superseded rather than served.
func (h *Host) active(ctx context.Context) (*View, error) {
	var (
		v          *View
		superseded bool
	)
	if err := h.app.Loop.Call(ctx, func() {
		if v = h.view; v != nil {
			superseded = v.Superseded()
		}
	}); err != nil {
		return nil, fmt.Errorf("find view: %w", err)
	}
	if v == nil {
		return nil, domain.ErrNoActiveSearch
	}
	if superseded {
		return nil, domain.ErrSuperseded
	}
	return v, nil
}

// mutate runs op on the active view and, when op issued a fetch, waits for
// that fetch to settle. It fails with ErrSuperseded when the view belongs to
// a search other than sess, or when a newer search starts before the result
// is returned.
func (h *Host) mutate(ctx context.Context, sess *orchestrator.Session, op func(v *View) bool) (Snapshot, error) {
	var (
		v       *View
		settled <-chan error
		err     error
	)
	if callErr := h.app.Loop.Call(ctx, func() {
		switch v = h.view; {
		case v == nil:
			err = domain.ErrNoActiveSearch
		case sess != nil && v.Session() != sess, v.Superseded():
			err = domain.ErrSuperseded
		case op(v):
			settled = v.Collection().Settled()
		}
	}); callErr != nil {
		return Snapshot{}, fmt.Errorf("update view: %w", callErr)
	}
	if err != nil {
		return Snapshot{}, err
	}

	if settled != nil {
		select {
		case err = <-settled:
		case <-ctx.Done():
			return Snapshot{}, fmt.Errorf("wait for results: %w", ctx.Err())
		}
	}

	// A fetch that settles after a newer search started reports the
	// supersede rather than its own outcome.
	var superseded bool
	if callErr := h.app.Loop.Call(ctx, func() { superseded = v.Superseded() }); callErr != nil {
		return Snapshot{}, fmt.Errorf("update view: %w", callErr)
	}
	if superseded {
		return Snapshot{}, domain.ErrSuperseded
	}
	if err != nil {
		return Snapshot{}, err
	}
	snap, _ := v.Snapshot()
	return snap, nil
}
