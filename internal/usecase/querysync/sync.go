// Package querysync keeps the navigable URL state in step with a result collection.
package querysync

import (
	"go.uber.org/zap"

	"github.com/kailas-cloud/imagespace/internal/collection"
	"github.com/kailas-cloud/imagespace/internal/domain/urlstate"
)

// Sink receives URL state updates. replace=true rewrites the current history
// entry instead of appending a new one.
type Sink interface {
	Update(state urlstate.State, replace bool)
}

// Sync derives URL state from collection state. It only ever writes to the
// sink; it never reacts to sink changes, so there is no fetch feedback loop.
type Sync struct {
	sink   Sink
	logger *zap.Logger
}

// New creates a query-parameter sync.
func New(sink Sink, logger *zap.Logger) *Sync {
	return &Sync{sink: sink, logger: logger}
}

// Update writes state with explicit push (false) or replace (true) semantics.
func (s *Sync) Update(state urlstate.State, replace bool) {
	s.logger.Debug("Updating URL state",
		zap.String("query", state.Encode()),
		zap.Bool("replace", replace),
	)
	s.sink.Update(state, replace)
}

// Push appends state to the history.
func (s *Sync) Push(state urlstate.State) {
	s.Update(state, false)
}

// OnChange publishes the collection's 1-based page. Landing on the first page
// replaces the history entry so an unpaginated/paginated pair of URLs never
// ends up in the back stack; every other page is pushed. Collections without
// pagination publish nothing. Reports whether the URL was replaced.
func (s *Sync) OnChange(c *collection.Collection) (replaced bool) {
	if !c.SupportsPagination() {
		return false
	}
	page := c.PageNum()
	replaced = page == 0
	s.Update(urlstate.PageState(page+1), replaced)
	return replaced
}

// SetClassifications rebuilds the classification filter from the selected
// keys, pushes it to the URL, then re-fetches with force: the params were
// already changed in place, so fetch deduplication must be bypassed.
// The URL push happens before the fetch resolves.
func (s *Sync) SetClassifications(c *collection.Collection, selected []string) bool {
	c.Params.SetClassifications(selected)
	s.Push(urlstate.ClassificationsState(c.Params.Classifications))
	return c.Fetch(c.Params, true)
}
