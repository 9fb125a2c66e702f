package orchestrator

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kailas-cloud/imagespace/internal/collection"
	"github.com/kailas-cloud/imagespace/internal/domain/feature"
	"github.com/kailas-cloud/imagespace/internal/domain/image"
	"github.com/kailas-cloud/imagespace/internal/domain/viewmode"
	"github.com/kailas-cloud/imagespace/internal/loop"
	"github.com/kailas-cloud/imagespace/internal/repository/history"
	"github.com/kailas-cloud/imagespace/internal/usecase/resolver"
	"github.com/kailas-cloud/imagespace/internal/usecase/status"
)

// fakeLookup serves a fixed document list; calls can be held open per call index.
type fakeLookup struct {
	mu    sync.Mutex
	docs  []string
	err   error
	gates map[int]chan struct{}
	exprs []string
}

func (f *fakeLookup) Lookup(ctx context.Context, expression string) (resolver.LookupResult, error) {
	f.mu.Lock()
	n := len(f.exprs)
	f.exprs = append(f.exprs, expression)
	gate := f.gates[n]
	docs, err := f.docs, f.err
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return resolver.LookupResult{}, ctx.Err()
		}
	}
	if err != nil {
		return resolver.LookupResult{}, err
	}
	res := resolver.LookupResult{NumFound: len(docs)}
	for _, id := range docs {
		doc, _ := json.Marshal(map[string]string{"id": id})
		res.Docs = append(res.Docs, doc)
	}
	return res, nil
}

func (f *fakeLookup) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.exprs)
}

type fakeComputer struct {
	mu   sync.Mutex
	urls []string
	err  error
	gate chan struct{}
}

func (f *fakeComputer) Compute(_ context.Context, imageURL string) (json.RawMessage, error) {
	f.mu.Lock()
	f.urls = append(f.urls, imageURL)
	gate, err := f.gate, f.err
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(`{"id":"computed-1","vector":[0.1]}`), nil
}

func (f *fakeComputer) calledWith() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}

type fixedPrefs viewmode.Mode

func (p fixedPrefs) ViewMode(context.Context) (viewmode.Mode, error) { return viewmode.Mode(p), nil }

type nopFetcher struct{}

func (nopFetcher) FetchPage(context.Context, collection.Request) (collection.Page, error) {
	return collection.Page{}, nil
}

type harness struct {
	loop     *loop.Loop
	app      *AppContext
	orch     *Orchestrator
	history  *history.History
	status   *status.Indicator
	lookup   *fakeLookup
	computer *fakeComputer

	mu     sync.Mutex
	images []image.Image
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	l := loop.New(zap.NewNop())
	go l.Run(ctx)

	h := &harness{
		loop:     l,
		history:  history.New(0),
		status:   status.New(),
		lookup:   &fakeLookup{gates: map[int]chan struct{}{}},
		computer: &fakeComputer{},
	}
	h.app = NewAppContext(ctx, l, fixedPrefs(viewmode.List), h.history, h.status, NewNavigator())

	identity := feature.NewIdentity("https://img.example.com/roxy/", "/data/roxy/")
	res := resolver.New(h.lookup, h.computer, identity, zap.NewNop())

	opts := collection.Options{PageSize: 20, SupportsPagination: true}
	similar := FetcherMode(l, "similar", "Visual Similarity", nopFetcher{}, opts)
	inner := similar.Search
	similar.Search = func(img image.Image, token string) *collection.Collection {
		h.mu.Lock()
		h.images = append(h.images, img)
		h.mu.Unlock()
		return inner(img, token)
	}
	modes, err := NewRegistry(similar, FetcherMode(l, "plain", "", nopFetcher{}, opts))
	require.NoError(t, err)

	h.orch = New(Config{
		App:                  h.app,
		Resolver:             res,
		Modes:                modes,
		Stored:               StoredQueries(l, nopFetcher{}, nil, opts),
		ManagedStorageMarker: "girder",
		Logger:               zap.NewNop(),
	})
	return h
}

func (h *harness) idle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.loop.Idle(ctx))
}

func (h *harness) built() []image.Image {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]image.Image(nil), h.images...)
}

// drain returns every navigation currently queued.
func (h *harness) drain() []Navigation {
	var out []Navigation
	for {
		select {
		case nav := <-h.app.Navigator.C():
			out = append(out, nav)
		default:
			return out
		}
	}
}

// bind acknowledges nav the way the view host does.
func (h *harness) bind(t *testing.T, nav Navigation) bool {
	t.Helper()
	var ok bool
	require.NoError(t, h.loop.Call(context.Background(), func() { ok = h.app.Bind(nav.Session) }))
	return ok
}

func hasPrefix(list []string, prefix string) bool {
	for _, s := range list {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
