package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/imagespace/internal/domain"
	"github.com/kailas-cloud/imagespace/internal/domain/image"
	"github.com/kailas-cloud/imagespace/internal/domain/query"
	"github.com/kailas-cloud/imagespace/internal/domain/viewmode"
	"github.com/kailas-cloud/imagespace/internal/metrics"
)

func TestSearchByImage_ComputesWhenNoneFound(t *testing.T) {
	h := newHarness(t)
	raw := "http://girder.example.com/api/v1/file/7/download?contentDisposition=inline&token=STALE"

	s, err := h.orch.SearchByImage(context.Background(), raw, "similar", "FRESH")
	require.NoError(t, err)
	h.idle(t)

	normalized := "http://girder.example.com/api/v1/file/7/download?contentDisposition=inline&token=FRESH"
	assert.Equal(t, []string{normalized}, h.computer.calledWith(), "compute invoked once with the session's token")
	require.Len(t, h.built(), 1, "exactly one collection built")

	navs := h.drain()
	require.Len(t, navs, 1, "exactly one navigation")
	nav := navs[0]
	assert.Same(t, s, nav.Session)
	assert.Equal(t, normalized, nav.URL)
	assert.Equal(t, "similar", nav.Mode)
	assert.Equal(t, "Visual Similarity", nav.ModeName)
	assert.Equal(t, viewmode.List, nav.ViewMode)

	require.NotNil(t, nav.Image)
	assert.Equal(t, image.Uploaded, nav.Image.Kind())
	rec := nav.Image.Record()
	assert.Equal(t, "computed-1", rec.ID())
	assert.True(t, rec.Computed())
	assert.Equal(t, "computed-1", nav.Collection.Params.Extra[ParamID])
	assert.Equal(t, normalized, nav.Collection.Params.Extra[ParamURL])

	resolved, ok := nav.Query.(query.Image).Resolved()
	require.True(t, ok)
	assert.Equal(t, "computed-1", resolved.ID())

	assert.Equal(t, Searching, s.State())
	assert.True(t, h.bind(t, nav))
	require.NoError(t, s.Wait(context.Background()))
	assert.Equal(t, []State{Idle, ResolvingIdentity, ComputingFeatures, RecordReady, Searching, ResultsBound}, s.Trail())
}

func TestSearchByImage_FirstDocumentWins(t *testing.T) {
	h := newHarness(t)
	h.lookup.docs = []string{"/data/roxy/IMG_001.jpg", "/data/roxy/img_001.JPG"}

	for range 2 {
		s, err := h.orch.SearchByImage(context.Background(), "https://img.example.com/roxy/IMG_001.jpg", "similar", "")
		require.NoError(t, err)
		h.idle(t)

		navs := h.drain()
		require.Len(t, navs, 1)
		rec := navs[0].Image.Record()
		assert.Equal(t, "/data/roxy/IMG_001.jpg", rec.ID())
		assert.False(t, rec.Computed())
		assert.Equal(t, image.Indexed, navs[0].Image.Kind())
		assert.Equal(t, []State{Idle, ResolvingIdentity, FoundRecord, RecordReady, Searching}, s.Trail())
	}
	assert.Empty(t, h.computer.calledWith())
}

func TestSearchByImage_UnknownModeShortCircuits(t *testing.T) {
	h := newHarness(t)

	s, err := h.orch.SearchByImage(context.Background(), "https://img.example.com/roxy/a.jpg", "nope", "")
	require.Error(t, err)
	assert.Nil(t, s)
	assert.True(t, errors.Is(err, domain.ErrUnknownMode))

	var modeErr *domain.UnknownModeError
	require.ErrorAs(t, err, &modeErr)
	assert.Equal(t, "nope", modeErr.Mode)

	h.idle(t)
	assert.Zero(t, h.lookup.calls(), "no backend call")
	assert.Zero(t, h.status.ShowCount(), "no status shown")
	assert.Empty(t, h.drain())
	assert.Empty(t, h.history.Entries())
}

func TestSearchByImage_ResolutionFailureLeavesStatusVisible(t *testing.T) {
	h := newHarness(t)
	h.lookup.err = errors.New("connection refused")

	s, err := h.orch.SearchByImage(context.Background(), "https://img.example.com/roxy/a.jpg", "plain", "")
	require.NoError(t, err)

	werr := s.Wait(context.Background())
	assert.ErrorIs(t, werr, domain.ErrResolutionFailure)
	assert.Equal(t, Failed, s.State())

	cur := h.status.Current()
	assert.True(t, cur.Visible)
	assert.Equal(t, "Performing plain search", cur.Text, "mode token used when there is no nice name")
	h.idle(t)
	assert.Empty(t, h.drain())
}

func TestSearchByImage_ComputeFailure(t *testing.T) {
	h := newHarness(t)
	h.computer.err = errors.New("bad gateway")

	s, err := h.orch.SearchByImage(context.Background(), "https://img.example.com/roxy/a.jpg", "similar", "")
	require.NoError(t, err)

	assert.ErrorIs(t, s.Wait(context.Background()), domain.ErrResolutionFailure)
	assert.Equal(t, "Computing features", statusText(h))
	assert.Empty(t, h.built())
}

func TestSearchByImage_StatusWhileComputing(t *testing.T) {
	h := newHarness(t)
	h.computer.gate = make(chan struct{})

	_, err := h.orch.SearchByImage(context.Background(), "https://img.example.com/roxy/a.jpg", "similar", "")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(h.computer.calledWith()) == 1 }, waitFor, tick)
	assert.Equal(t, "Computing features", statusText(h))

	close(h.computer.gate)
	h.idle(t)
	assert.Equal(t, "Performing Visual Similarity search", statusText(h))
	assert.True(t, h.status.Current().Visible, "the view hides the status, not the orchestrator")
}

func TestSearchByImage_SupersededCompletionIsDiscarded(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.lookup.gates[0] = gate
	h.lookup.docs = []string{"/data/roxy/a.jpg", "/data/roxy/b.jpg"}
	stale := testutil.ToFloat64(metrics.StaleCompletionsTotal.WithLabelValues("resolve"))

	first, err := h.orch.SearchByImage(context.Background(), "https://img.example.com/roxy/a.jpg", "similar", "")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.lookup.calls() == 1 }, waitFor, tick)

	second, err := h.orch.SearchByImage(context.Background(), "https://img.example.com/roxy/b.jpg", "similar", "")
	require.NoError(t, err)

	assert.ErrorIs(t, first.Wait(context.Background()), domain.ErrSuperseded)
	close(gate)
	h.idle(t)

	navs := h.drain()
	require.Len(t, navs, 1)
	assert.Same(t, second, navs[0].Session)
	assert.Len(t, h.built(), 1, "the superseded search never builds a collection")
	assert.Equal(t, ResolvingIdentity, first.State(), "superseded session keeps its last state")
	assert.Equal(t, stale+1, testutil.ToFloat64(metrics.StaleCompletionsTotal.WithLabelValues("resolve")))
	assert.False(t, h.bind(t, Navigation{Session: first}))
	assert.True(t, h.bind(t, navs[0]))
}

func TestSearchByStoredQuery_BuildsCollection(t *testing.T) {
	h := newHarness(t)

	s, err := h.orch.SearchByStoredQuery(context.Background(), "weapons", "classifications=B,A,B&source=ads", "tok")
	require.NoError(t, err)
	h.idle(t)

	assert.Equal(t, "Searching", statusText(h))
	navs := h.drain()
	require.Len(t, navs, 1)
	nav := navs[0]
	assert.Nil(t, nav.Image)
	assert.Equal(t, query.KindStored, nav.Query.Kind())
	assert.Equal(t, "weapons", nav.Collection.Params.Query)
	assert.Equal(t, []string{"B", "A"}, nav.Collection.Params.Classifications)
	assert.Equal(t, map[string]string{"source": "ads"}, nav.Collection.Params.Extra)
	assert.Equal(t, []State{Idle, Searching}, s.Trail())

	cur, ok := h.history.Current()
	require.True(t, ok)
	assert.Equal(t, "search/weapons/params/classifications=B%2CA%2CB&source=ads", cur.Route)
	assert.Equal(t, "weapons", *cur.State.Query)
	assert.Equal(t, "B,A", *cur.State.Classifications)
}

func TestSearchByStoredQuery_Rejects(t *testing.T) {
	h := newHarness(t)

	_, err := h.orch.SearchByStoredQuery(context.Background(), "  ", "", "")
	assert.ErrorIs(t, err, domain.ErrInvalidQuery)

	s, err := h.orch.SearchByStoredQuery(context.Background(), "iqr:abc", "", "")
	assert.ErrorIs(t, err, domain.ErrInvalidQuery, "iqr is not configured in the harness")
	require.NotNil(t, s)
	assert.Equal(t, Failed, s.State())
	h.idle(t)
	assert.Empty(t, h.drain())
}

func TestSearchByStoredQuery_IdenticalSearchesMatch(t *testing.T) {
	h := newHarness(t)

	_, err := h.orch.SearchByStoredQuery(context.Background(), "q", "classifications=A,B", "")
	require.NoError(t, err)
	h.idle(t)
	first := h.drain()
	_, err = h.orch.SearchByStoredQuery(context.Background(), "q", "classifications=A,B", "")
	require.NoError(t, err)
	h.idle(t)
	second := h.drain()

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.NotSame(t, first[0].Collection, second[0].Collection, "every search gets a fresh collection")
	assert.True(t, first[0].Collection.Params.Equal(second[0].Collection.Params))
}

func TestSearch_UnconsumedNavigationIsReplaced(t *testing.T) {
	h := newHarness(t)

	_, err := h.orch.SearchByStoredQuery(context.Background(), "one", "", "")
	require.NoError(t, err)
	h.idle(t)
	_, err = h.orch.SearchByStoredQuery(context.Background(), "two", "", "")
	require.NoError(t, err)
	h.idle(t)

	navs := h.drain()
	require.Len(t, navs, 1)
	assert.Equal(t, "two", navs[0].Collection.Params.Query)
}

func TestNormalizedTokenNeverLeaksIntoHistory(t *testing.T) {
	h := newHarness(t)
	raw := "http://girder.example.com/file?x=1&token=SHARED"

	_, err := h.orch.SearchByImage(context.Background(), raw, "similar", "MINE")
	require.NoError(t, err)
	h.idle(t)

	cur, ok := h.history.Current()
	require.True(t, ok)
	assert.Equal(t, raw, *cur.State.URL, "history keeps the route as navigated")
	assert.True(t, hasPrefix(h.computer.calledWith(), "http://girder.example.com/file?x=1&token=MINE"))
}
