// Package orchestrator sequences feature resolution, search dispatch and
// result binding for stored-query and image searches.
package orchestrator

import (
	"context"

	"github.com/kailas-cloud/imagespace/internal/domain"
	"github.com/kailas-cloud/imagespace/internal/domain/urlstate"
	"github.com/kailas-cloud/imagespace/internal/domain/viewmode"
	"github.com/kailas-cloud/imagespace/internal/loop"
	"github.com/kailas-cloud/imagespace/internal/metrics"
	"github.com/kailas-cloud/imagespace/internal/usecase/status"
)

// Preferences reads the persisted view mode.
type Preferences interface {
	ViewMode(ctx context.Context) (viewmode.Mode, error)
}

// History is the navigation-state sink.
type History interface {
	Navigate(route string, state urlstate.State)
	Update(state urlstate.State, replace bool)
}

// AppContext is the application-wide state shared by the orchestrator and the
// result view. It is created once at startup; the active session is replaced
// by every new search and never torn down explicitly.
type AppContext struct {
	Loop        *loop.Loop
	Preferences Preferences
	History     History
	Status      *status.Indicator
	Navigator   *Navigator

	base   context.Context
	active *Session
}

// NewAppContext creates the application context. Session contexts derive
// from base, so cancelling base cancels every outstanding backend call.
func NewAppContext(
	base context.Context,
	l *loop.Loop,
	prefs Preferences,
	history History,
	indicator *status.Indicator,
	nav *Navigator,
) *AppContext {
	return &AppContext{
		Loop:        l,
		Preferences: prefs,
		History:     history,
		Status:      indicator,
		Navigator:   nav,
		base:        base,
	}
}

// Active returns the current session. Loop only.
func (a *AppContext) Active() *Session { return a.active }

// IsCurrent reports whether s is still the active session. Loop only.
func (a *AppContext) IsCurrent(s *Session) bool {
	return s != nil && a.active == s
}

// Bind marks s as bound to the result view. It fails when a newer search has
// superseded s. Loop only.
func (a *AppContext) Bind(s *Session) bool {
	if !a.IsCurrent(s) {
		return false
	}
	if s.finish(ResultsBound, nil) {
		metrics.SearchesTotal.WithLabelValues(string(s.Kind()), "bound").Inc()
	}
	return true
}

// replaceActive makes s the active session. The previous session's backend
// calls are cancelled and its waiters released with ErrSuperseded. Loop only.
func (a *AppContext) replaceActive(s *Session) {
	if prev := a.active; prev != nil {
		prev.cancel()
		if prev.abandon(domain.ErrSuperseded) {
			metrics.SearchesTotal.WithLabelValues(string(prev.Kind()), "superseded").Inc()
		}
	}
	a.active = s
}
