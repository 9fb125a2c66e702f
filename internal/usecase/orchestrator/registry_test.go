package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/imagespace/internal/collection"
	"github.com/kailas-cloud/imagespace/internal/domain"
	"github.com/kailas-cloud/imagespace/internal/domain/image"
	"github.com/kailas-cloud/imagespace/internal/domain/query"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func statusText(h *harness) string { return h.status.Current().Text }

func noopSearch(image.Image, string) *collection.Collection { return nil }

func TestRegistry(t *testing.T) {
	r, err := NewRegistry(
		Mode{Name: "smqtk", NiceName: "SMQTK", Search: noopSearch},
		Mode{Name: "cmu", Search: noopSearch},
	)
	require.NoError(t, err)

	m, err := r.Lookup("smqtk")
	require.NoError(t, err)
	assert.Equal(t, "SMQTK", m.DisplayName())

	m, err = r.Lookup("cmu")
	require.NoError(t, err)
	assert.Equal(t, "cmu", m.DisplayName())

	_, err = r.Lookup("missing")
	assert.ErrorIs(t, err, domain.ErrUnknownMode)
	assert.Equal(t, []string{"cmu", "smqtk"}, r.Names())
}

func TestRegistry_Invalid(t *testing.T) {
	_, err := NewRegistry(Mode{Name: "a", Search: noopSearch}, Mode{Name: "a", Search: noopSearch})
	assert.Error(t, err)

	_, err = NewRegistry(Mode{Name: " ", Search: noopSearch})
	assert.Error(t, err)

	_, err = NewRegistry(Mode{Name: "a"})
	assert.Error(t, err)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "computing_features", ComputingFeatures.String())
	assert.Equal(t, "state(42)", State(42).String())
	text, err := ResultsBound.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "results_bound", string(text))
}

func TestNavigator_KeepsLatest(t *testing.T) {
	n := NewNavigator()
	a := &Session{id: "a"}
	b := &Session{id: "b"}

	assert.Nil(t, n.Publish(Navigation{Session: a}))
	displaced := n.Publish(Navigation{Session: b})
	require.NotNil(t, displaced)
	assert.Same(t, a, displaced.Session)

	got := <-n.C()
	assert.Same(t, b, got.Session)
	select {
	case extra := <-n.C():
		t.Fatalf("unexpected second navigation %v", extra.Session.ID())
	default:
	}
}

func TestRoutes(t *testing.T) {
	q, err := query.NewStored("weapons", "classifications=A,B")
	require.NoError(t, err)
	assert.Equal(t, "search/weapons/params/classifications=A%2CB", StoredRoute(q))
	assert.Equal(t, "search/http:%2F%2Fimg%2Fa.jpg/smqtk", ImageRoute("http://img/a.jpg", "smqtk"))
}
