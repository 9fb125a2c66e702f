package featurecache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/imagespace/internal/db"
	"github.com/kailas-cloud/imagespace/internal/domain/feature"
)

type mockComputer struct {
	doc   json.RawMessage
	err   error
	calls int
	urls  []string
}

func (m *mockComputer) Compute(_ context.Context, imageURL string) (json.RawMessage, error) {
	m.calls++
	m.urls = append(m.urls, imageURL)
	return m.doc, m.err
}

// mockKVStore implements the consumer interface for tests.
type mockKVStore struct {
	getFn func(ctx context.Context, key string) ([]byte, error)
	setFn func(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

func (m *mockKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockKVStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if m.setFn != nil {
		return m.setFn(ctx, key, value, ttl)
	}
	return nil
}

func newTestCachedComputer(t *testing.T, inner *mockComputer) (*CachedComputer, *mockKVStore) {
	t.Helper()
	ms := &mockKVStore{}
	identity := feature.NewIdentity("https://img.example.com/roxy/", "/data/roxy/")
	cc := New(inner, ms, identity, time.Hour, nil, zap.NewNop())
	return cc, ms
}
