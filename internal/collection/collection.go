// Package collection implements the paginated, filterable result collection.
//
// A Collection is confined to the event loop: every method must be called on
// the loop goroutine. Fetches run through loop.Await, and change
// notifications fire on the loop strictly after the fetch that triggered them
// has resolved.
package collection

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/imagespace/internal/domain"
	"github.com/kailas-cloud/imagespace/internal/domain/result"
	"github.com/kailas-cloud/imagespace/internal/loop"
)

// DefaultPageSize is used when Options.PageSize is not set.
const DefaultPageSize = 20

// Page is one fetched page of results.
type Page struct {
	Records []result.Record
	// Total is the backend's total hit count, or -1 when unknown.
	Total   int
	HasMore bool
}

// Fetcher loads a page of results from a search backend.
type Fetcher interface {
	FetchPage(ctx context.Context, req Request) (Page, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req Request) (Page, error)

// FetchPage implements Fetcher.
func (f FetcherFunc) FetchPage(ctx context.Context, req Request) (Page, error) { return f(ctx, req) }

// Options configure a collection.
type Options struct {
	PageSize           int
	SupportsPagination bool
	Logger             *zap.Logger
}

// ChangeFunc observes a successful fetch.
type ChangeFunc func(c *Collection)

// ErrorFunc observes a failed fetch.
type ErrorFunc func(c *Collection, err error)

// Collection is an ordered, paginated set of result records.
type Collection struct {
	id        string
	loop      *loop.Loop
	fetcher   Fetcher
	pageSize  int
	paginated bool
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	closed bool

	// Params may be written by consumers immediately before a Fetch.
	Params Params

	items   []result.Record
	page    int
	total   int
	hasMore bool
	fetched bool

	seq      uint64
	inflight *Request
	last     *Request

	listeners listeners
	waiters   []chan error
}

// New creates an empty collection. Nothing is fetched until Fetch is called.
func New(l *loop.Loop, fetcher Fetcher, params Params, opts Options) *Collection {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	return &Collection{
		id:        id,
		loop:      l,
		fetcher:   fetcher,
		pageSize:  opts.PageSize,
		paginated: opts.SupportsPagination,
		logger:    opts.Logger.With(zap.String("collection_id", id)),
		ctx:       ctx,
		cancel:    cancel,
		Params:    params.Clone(),
		total:     -1,
	}
}

// ID returns the collection's unique identity.
func (c *Collection) ID() string { return c.id }

// SupportsPagination reports whether a pagination control applies.
func (c *Collection) SupportsPagination() bool { return c.paginated }

// PageSize returns the number of records per page.
func (c *Collection) PageSize() int { return c.pageSize }

// PageNum returns the 0-based number of the last successfully fetched page.
func (c *Collection) PageNum() int { return c.page }

// Fetched reports whether at least one fetch has completed successfully.
func (c *Collection) Fetched() bool { return c.fetched }

// Total returns the backend's total hit count, or -1 when unknown.
func (c *Collection) Total() int { return c.total }

// HasNextPage reports whether a page follows the current one.
func (c *Collection) HasNextPage() bool { return c.hasMore }

// HasPreviousPage reports whether a page precedes the current one.
func (c *Collection) HasPreviousPage() bool { return c.page > 0 }

// Pending reports whether a fetch is in flight.
func (c *Collection) Pending() bool { return c.inflight != nil }

// Len returns the number of records on the current page.
func (c *Collection) Len() int { return len(c.items) }

// Items returns a copy of the current page's records.
func (c *Collection) Items() []result.Record { return slices.Clone(c.items) }

// Each calls fn for every record on the current page, in order.
func (c *Collection) Each(fn func(i int, r result.Record)) {
	for i, r := range c.items {
		fn(i, r)
	}
}

// OnChange registers fn for change notifications and returns an unsubscribe func.
func (c *Collection) OnChange(fn ChangeFunc) func() {
	return c.listeners.addChange(fn)
}

// OnError registers fn for fetch failures and returns an unsubscribe func.
func (c *Collection) OnError(fn ErrorFunc) func() {
	return c.listeners.addError(fn)
}

// Settled returns a channel that receives the outcome of the next fetch to
// resolve: nil after the change notification, or the fetch error.
func (c *Collection) Settled() <-chan error {
	ch := make(chan error, 1)
	c.waiters = append(c.waiters, ch)
	return ch
}

// Fetch replaces Params and loads the current page, or page 0 when force is
// set or nothing has been fetched yet. Without force, a request identical to
// the in-flight one (or, when idle, to the last completed one) is skipped.
// Reports whether a request was issued.
func (c *Collection) Fetch(params Params, force bool) bool {
	c.Params = params.Clone()
	page := c.page
	if force || !c.fetched {
		page = 0
	}
	return c.fetchPage(page, force)
}

// FetchPage loads the 0-based page n with the current Params.
func (c *Collection) FetchPage(n int) bool {
	if n < 0 {
		n = 0
	}
	return c.fetchPage(n, false)
}

// FetchNextPage advances one page when there is one.
func (c *Collection) FetchNextPage() bool {
	if !c.hasMore {
		return false
	}
	return c.fetchPage(c.page+1, false)
}

// FetchPreviousPage goes back one page when there is one.
func (c *Collection) FetchPreviousPage() bool {
	if c.page == 0 {
		return false
	}
	return c.fetchPage(c.page-1, false)
}

// Close cancels in-flight requests and makes late completions inert.
func (c *Collection) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
	c.listeners.clear()
	for _, w := range c.waiters {
		w <- domain.ErrSuperseded
	}
	c.waiters = nil
}

// Closed reports whether Close has been called.
func (c *Collection) Closed() bool { return c.closed }

func (c *Collection) fetchPage(page int, force bool) bool {
	if c.closed {
		return false
	}

	req := Request{
		Params: c.Params.Clone(),
		Page:   page,
		Offset: page * c.pageSize,
		Limit:  c.pageSize,
	}

	if !force {
		if c.inflight != nil && c.inflight.same(req) {
			c.logger.Debug("Skipping duplicate in-flight fetch", zap.Int("page", page))
			return false
		}
		if c.inflight == nil && c.last != nil && c.last.same(req) {
			c.logger.Debug("Skipping fetch identical to current page", zap.Int("page", page))
			return false
		}
	}

	c.seq++
	seq := c.seq
	c.inflight = &req

	c.logger.Debug("Fetching page",
		zap.Int("page", page),
		zap.Bool("force", force),
		zap.Strings("classifications", req.Params.Classifications),
	)

	loop.Await(c.loop, c.ctx, func(ctx context.Context) (Page, error) {
		return c.fetcher.FetchPage(ctx, req)
	}, func(p Page, err error) {
		c.complete(seq, req, p, err)
	})
	return true
}

func (c *Collection) complete(seq uint64, req Request, p Page, err error) {
	if c.closed {
		return
	}
	if seq != c.seq {
		// a later fetch owns the collection now
		c.logger.Debug("Dropping superseded fetch result", zap.Int("page", req.Page))
		return
	}
	c.inflight = nil

	if err != nil {
		err = fmt.Errorf("%w: fetch page %d: %w", domain.ErrSearchDispatchFailure, req.Page, err)
		c.logger.Warn("Fetch failed", zap.Int("page", req.Page), zap.Error(err))
		c.listeners.emitError(c, err)
		c.settle(err)
		return
	}

	c.items = slices.Clone(p.Records)
	c.page = req.Page
	c.total = p.Total
	c.hasMore = p.HasMore
	c.fetched = true
	c.last = &req

	c.listeners.emitChange(c)
	c.settle(nil)
}

func (c *Collection) settle(err error) {
	waiters := c.waiters
	c.waiters = nil
	for _, w := range waiters {
		w <- err
	}
}
