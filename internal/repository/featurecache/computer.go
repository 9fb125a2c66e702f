// Package featurecache caches computed feature documents in a key-value store.
package featurecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/imagespace/internal/db"
	"github.com/kailas-cloud/imagespace/internal/domain"
	"github.com/kailas-cloud/imagespace/internal/domain/feature"
)

var cacheKeyPrefix = domain.KeyPrefix + "features:"

// store is the consumer interface for the feature cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// computer is the wrapped feature service.
type computer interface {
	Compute(ctx context.Context, imageURL string) (json.RawMessage, error)
}

// CachedComputer skips recomputation for images whose features were computed
// within the TTL.
type CachedComputer struct {
	inner      computer
	store      store
	identity   feature.Identity
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(
	inner computer,
	s store,
	identity feature.Identity,
	ttl time.Duration,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedComputer {
	return &CachedComputer{
		inner:      inner,
		store:      s,
		identity:   identity,
		ttl:        ttl,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Compute returns a cached feature document or calls the inner service.
// Cache failures degrade to a plain compute.
func (c *CachedComputer) Compute(ctx context.Context, imageURL string) (json.RawMessage, error) {
	key := c.cacheKey(imageURL)

	if doc, ok := c.getFromCache(ctx, key); ok {
		c.incCache("hit")
		return doc, nil
	}

	c.incCache("miss")

	doc, err := c.inner.Compute(ctx, imageURL)
	if err != nil {
		return nil, fmt.Errorf("compute features: %w", err)
	}

	c.putToCache(ctx, key, doc)
	return doc, nil
}

func (c *CachedComputer) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

// cacheKey hashes the identity key, so case variants of a URL stay distinct
// and the query string (session tokens) never reaches the store.
func (c *CachedComputer) cacheKey(imageURL string) string {
	h := sha256.Sum256([]byte(c.identity.Key(imageURL)))
	return cacheKeyPrefix + hex.EncodeToString(h[:])
}

func (c *CachedComputer) getFromCache(ctx context.Context, key string) (json.RawMessage, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached features", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}
	if !json.Valid(data) {
		c.logger.Warn("Discarding malformed cached features", zap.String("key", key))
		return nil, false
	}
	return json.RawMessage(data), true
}

func (c *CachedComputer) putToCache(ctx context.Context, key string, doc json.RawMessage) {
	if len(doc) == 0 {
		return
	}
	if err := c.store.SetWithTTL(ctx, key, doc, c.ttl); err != nil {
		c.logger.Warn("Failed to cache features", zap.String("key", key), zap.Error(err))
	}
}
