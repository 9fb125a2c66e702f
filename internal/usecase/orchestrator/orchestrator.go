package orchestrator

import (
	"context"
	"net/url"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/imagespace/internal/collection"
	"github.com/kailas-cloud/imagespace/internal/domain/feature"
	"github.com/kailas-cloud/imagespace/internal/domain/image"
	"github.com/kailas-cloud/imagespace/internal/domain/query"
	"github.com/kailas-cloud/imagespace/internal/domain/session"
	"github.com/kailas-cloud/imagespace/internal/domain/urlstate"
	"github.com/kailas-cloud/imagespace/internal/domain/viewmode"
	"github.com/kailas-cloud/imagespace/internal/loop"
	"github.com/kailas-cloud/imagespace/internal/metrics"
	"github.com/kailas-cloud/imagespace/internal/usecase/resolver"
	"github.com/kailas-cloud/imagespace/internal/usecase/status"
)

// Resolver resolves image URLs to feature records.
type Resolver interface {
	Resolve(ctx context.Context, imageURL string) (resolver.Resolution, error)
	Compute(ctx context.Context, imageURL string) (feature.Record, error)
}

// StoredBuilder builds the unfetched collection for a stored query. It runs
// on the event loop.
type StoredBuilder func(q query.Stored, token string) (*collection.Collection, error)

// Config wires an orchestrator.
type Config struct {
	App      *AppContext
	Resolver Resolver
	Modes    *Registry
	Stored   StoredBuilder
	// ManagedStorageMarker identifies URLs of platform-managed (uploaded) images.
	ManagedStorageMarker string
	Logger               *zap.Logger
}

// Orchestrator runs search navigations.
type Orchestrator struct {
	app      *AppContext
	resolver Resolver
	modes    *Registry
	stored   StoredBuilder
	marker   string
	logger   *zap.Logger
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Orchestrator{
		app:      cfg.App,
		resolver: cfg.Resolver,
		modes:    cfg.Modes,
		stored:   cfg.Stored,
		marker:   cfg.ManagedStorageMarker,
		logger:   cfg.Logger,
	}
}

// Modes returns the mode registry.
func (o *Orchestrator) Modes() *Registry { return o.modes }

// SearchByStoredQuery starts a stored-query search. No resolution step runs:
// the collection is built immediately and handed to the view, which fetches it.
func (o *Orchestrator) SearchByStoredQuery(ctx context.Context, token, paramsBlob, sessionToken string) (*Session, error) {
	q, err := query.NewStored(token, paramsBlob)
	if err != nil {
		metrics.SearchesTotal.WithLabelValues(string(query.KindStored), "rejected").Inc()
		return nil, err
	}
	mode := o.viewMode(ctx)

	var (
		s      *Session
		failed error
	)
	callErr := o.app.Loop.Call(ctx, func() {
		o.app.Status.Show(status.Searching)
		s = o.begin(q.Kind(), sessionToken)

		state := urlstate.State{Query: ptr(q.QueryString())}
		if keys := q.Classifications(); len(keys) > 0 {
			state.Classifications = ptr(urlstate.JoinList(keys))
		}
		o.app.History.Navigate(StoredRoute(q), state)

		coll, err := o.stored(q, sessionToken)
		if err != nil {
			failed = err
			o.fail(s, err)
			return
		}
		o.transition(s, Searching)
		o.publish(Navigation{Session: s, Query: q, Collection: coll, ViewMode: mode})
	})
	if callErr != nil {
		return nil, callErr
	}
	if failed != nil {
		return s, failed
	}
	return s, nil
}

// SearchByImage starts an image search. An unknown mode fails synchronously
// before any backend call. The rest of the workflow runs asynchronously on
// the event loop; the returned session reports its progress.
func (o *Orchestrator) SearchByImage(ctx context.Context, rawURL, modeName, sessionToken string) (*Session, error) {
	mode, err := o.modes.Lookup(modeName)
	if err != nil {
		metrics.SearchesTotal.WithLabelValues(string(query.KindImage), "rejected").Inc()
		return nil, err
	}
	imageURL := session.NormalizeURL(rawURL, sessionToken)
	q, err := query.NewImage(imageURL, mode.Name)
	if err != nil {
		metrics.SearchesTotal.WithLabelValues(string(query.KindImage), "rejected").Inc()
		return nil, err
	}
	vm := o.viewMode(ctx)

	var s *Session
	callErr := o.app.Loop.Call(ctx, func() {
		o.app.Status.Show(status.Performing(mode.DisplayName()))
		s = o.begin(q.Kind(), sessionToken)
		o.app.History.Navigate(ImageRoute(rawURL, mode.Name), urlstate.State{URL: ptr(rawURL), Mode: ptr(mode.Name)})

		w := &imageSearch{o: o, s: s, q: q, mode: mode, token: sessionToken, viewMode: vm}
		w.resolve()
	})
	if callErr != nil {
		return nil, callErr
	}
	return s, nil
}

// imageSearch is one run of the image workflow. Every method runs on the loop.
type imageSearch struct {
	o        *Orchestrator
	s        *Session
	q        query.Image
	mode     Mode
	token    string
	viewMode viewmode.Mode
}

func (w *imageSearch) resolve() {
	w.o.transition(w.s, ResolvingIdentity)
	loop.Await(w.o.app.Loop, w.s.ctx, func(ctx context.Context) (resolver.Resolution, error) {
		return w.o.resolver.Resolve(ctx, w.q.ImageURL())
	}, w.resolved)
}

func (w *imageSearch) resolved(res resolver.Resolution, err error) {
	if !w.o.current(w.s, "resolve") {
		return
	}
	if err != nil {
		w.o.fail(w.s, err)
		return
	}
	if res.NeedsComputation {
		w.compute()
		return
	}
	w.o.transition(w.s, FoundRecord)
	w.ready(res.Record)
}

func (w *imageSearch) compute() {
	w.o.transition(w.s, ComputingFeatures)
	w.o.app.Status.Show(status.Computing)
	loop.Await(w.o.app.Loop, w.s.ctx, func(ctx context.Context) (feature.Record, error) {
		return w.o.resolver.Compute(ctx, w.q.ImageURL())
	}, w.computed)
}

func (w *imageSearch) computed(rec feature.Record, err error) {
	if !w.o.current(w.s, "compute") {
		return
	}
	if err != nil {
		w.o.fail(w.s, err)
		return
	}
	w.o.app.Status.Show(status.Performing(w.mode.DisplayName()))
	w.ready(rec)
}

func (w *imageSearch) ready(rec feature.Record) {
	w.o.transition(w.s, RecordReady)
	q := w.q.WithResolved(rec)
	img := image.New(q.ImageURL(), w.o.marker, rec)

	w.o.transition(w.s, Searching)
	coll := w.mode.Search(img, w.token)
	w.o.publish(Navigation{
		Session:    w.s,
		Query:      q,
		Collection: coll,
		Image:      &img,
		URL:        q.ImageURL(),
		Mode:       w.mode.Name,
		ModeName:   w.mode.DisplayName(),
		ViewMode:   w.viewMode,
	})
}

// begin creates a session and supersedes the active one. Loop only.
func (o *Orchestrator) begin(kind query.Kind, sessionToken string) *Session {
	s := newSession(session.WithToken(o.app.base, sessionToken), uuid.NewString(), kind)
	o.app.replaceActive(s)
	o.logger.Debug("Search started", zap.String("session_id", s.ID()), zap.String("kind", string(kind)))
	return s
}

// current is the identity guard for asynchronous completions. Loop only.
func (o *Orchestrator) current(s *Session, source string) bool {
	if o.app.IsCurrent(s) {
		return true
	}
	metrics.StaleCompletionsTotal.WithLabelValues(source).Inc()
	o.logger.Debug("Discarding completion of superseded search",
		zap.String("session_id", s.ID()),
		zap.String("source", source),
	)
	return false
}

func (o *Orchestrator) transition(s *Session, to State) {
	s.transition(to)
	o.logger.Debug("Search state", zap.String("session_id", s.ID()), zap.Stringer("state", to))
}

// fail ends s. The status indicator stays visible: a failed search looks
// like one that never completed.
func (o *Orchestrator) fail(s *Session, err error) {
	if !s.finish(Failed, err) {
		return
	}
	metrics.SearchesTotal.WithLabelValues(string(s.Kind()), "failed").Inc()
	o.logger.Warn("Search failed", zap.String("session_id", s.ID()), zap.Error(err))
}

func (o *Orchestrator) publish(nav Navigation) {
	if displaced := o.app.Navigator.Publish(nav); displaced != nil {
		// never delivered, so nothing else references its collection
		displaced.Collection.Close()
		metrics.StaleCompletionsTotal.WithLabelValues("navigation").Inc()
	}
}

// viewMode reads the preference once per navigation.
func (o *Orchestrator) viewMode(ctx context.Context) viewmode.Mode {
	mode, err := o.app.Preferences.ViewMode(ctx)
	if err != nil {
		o.logger.Warn("Failed to read view mode preference", zap.Error(err))
		return viewmode.Default
	}
	return mode
}

// StoredRoute renders the navigable route of a stored query.
func StoredRoute(q query.Stored) string {
	route := "search/" + url.PathEscape(q.QueryString())
	if blob := q.ParamsBlob(); blob != "" {
		route += "/params/" + url.PathEscape(blob)
	}
	return route
}

// ImageRoute renders the navigable route of an image search.
func ImageRoute(imageURL, mode string) string {
	return "search/" + url.PathEscape(imageURL) + "/" + url.PathEscape(mode)
}

func ptr[T any](v T) *T { return &v }
