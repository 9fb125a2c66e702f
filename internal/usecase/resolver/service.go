package resolver

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/imagespace/internal/domain"
	"github.com/kailas-cloud/imagespace/internal/domain/feature"
	"github.com/kailas-cloud/imagespace/internal/metrics"
)

// Resolution is the outcome of a lookup: a record, or a request to compute one.
type Resolution struct {
	Record           feature.Record
	NeedsComputation bool
	// Keys are the literal and case-inverted identity keys that were queried.
	Keys [2]string
}

// Service resolves image URLs to feature records.
type Service struct {
	lookup   Lookup
	compute  Computer
	identity feature.Identity
	flight   singleflight.Group
	logger   *zap.Logger
}

// New creates a feature resolver.
func New(lookup Lookup, compute Computer, identity feature.Identity, logger *zap.Logger) *Service {
	return &Service{lookup: lookup, compute: compute, identity: identity, logger: logger}
}

// Resolve looks up an existing record under both case variants of the URL's
// identity key. When the backend has none, the resolution asks for computation.
func (s *Service) Resolve(ctx context.Context, imageURL string) (Resolution, error) {
	keys := s.identity.Keys(imageURL)
	expr := feature.LookupExpression(keys[0], keys[1])

	res, err := s.lookup.Lookup(ctx, expr)
	if err != nil {
		metrics.FeatureResolutionTotal.WithLabelValues("error").Inc()
		return Resolution{}, fmt.Errorf("%w: lookup %q: %w", domain.ErrResolutionFailure, keys[0], err)
	}

	if NeedsComputation(res) {
		s.logger.Debug("No feature record found", zap.String("key", keys[0]))
		return Resolution{NeedsComputation: true, Keys: keys}, nil
	}

	doc := SelectDocument(res.Docs)
	rec, err := feature.FromDocument(doc, imageURL, keys[0], false)
	if err != nil {
		metrics.FeatureResolutionTotal.WithLabelValues("error").Inc()
		return Resolution{}, fmt.Errorf("%w: %w", domain.ErrResolutionFailure, err)
	}

	metrics.FeatureResolutionTotal.WithLabelValues("found").Inc()
	s.logger.Debug("Feature record found",
		zap.String("key", keys[0]),
		zap.String("id", rec.ID()),
		zap.Int("num_found", res.NumFound),
	)
	return Resolution{Record: rec, Keys: keys}, nil
}

// Compute asks the feature service for a fresh record. Concurrent calls for
// the same identity key share one request; sequential calls recompute, and
// the last record computed wins. The shared request is not bound to any one
// caller's cancellation: a caller whose ctx ends stops waiting while the
// others still receive the record.
func (s *Service) Compute(ctx context.Context, imageURL string) (feature.Record, error) {
	key := s.identity.Key(imageURL)

	ch := s.flight.DoChan(key, func() (any, error) {
		doc, err := s.compute.Compute(context.WithoutCancel(ctx), imageURL)
		if err != nil {
			return nil, err
		}
		return feature.FromDocument(doc, imageURL, key, true)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return feature.Record{}, fmt.Errorf("%w: compute %q: %w", domain.ErrResolutionFailure, key, ctx.Err())
	}
	if res.Err != nil {
		metrics.FeatureResolutionTotal.WithLabelValues("error").Inc()
		return feature.Record{}, fmt.Errorf("%w: compute %q: %w", domain.ErrResolutionFailure, key, res.Err)
	}

	metrics.FeatureResolutionTotal.WithLabelValues("computed").Inc()
	rec, ok := res.Val.(feature.Record)
	if !ok {
		return feature.Record{}, fmt.Errorf("%w: unexpected compute result %T", domain.ErrResolutionFailure, res.Val)
	}
	s.logger.Debug("Feature record computed", zap.String("key", key), zap.Bool("shared", res.Shared))
	return rec, nil
}

// NeedsComputation is the lookup guard: no stored document means the
// features must be computed.
func NeedsComputation(res LookupResult) bool {
	return res.NumFound == 0 || len(res.Docs) == 0
}

// SelectDocument picks the record used for the search. The first document is
// chosen, which is stable for identical backend responses.
func SelectDocument(docs []json.RawMessage) json.RawMessage {
	if len(docs) == 0 {
		return nil
	}
	return docs[0]
}
