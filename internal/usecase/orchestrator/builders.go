package orchestrator

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/imagespace/internal/collection"
	"github.com/kailas-cloud/imagespace/internal/domain"
	"github.com/kailas-cloud/imagespace/internal/domain/image"
	"github.com/kailas-cloud/imagespace/internal/domain/query"
	"github.com/kailas-cloud/imagespace/internal/domain/session"
	"github.com/kailas-cloud/imagespace/internal/loop"
)

// Search parameters sent by image modes.
const (
	ParamURL  = "url"
	ParamID   = "id"
	ParamKind = "image_kind"
)

// FetcherMode returns an image search mode backed by a page fetcher. The
// search image's URL, kind and feature record id become search parameters.
func FetcherMode(l *loop.Loop, name, niceName string, f collection.Fetcher, opts collection.Options) Mode {
	return Mode{
		Name:     name,
		NiceName: niceName,
		Search: func(img image.Image, token string) *collection.Collection {
			rec := img.Record()
			params := collection.Params{
				Mode: name,
				Extra: map[string]string{
					ParamURL:  img.ImageURL(),
					ParamKind: string(img.Kind()),
				},
			}
			if id := rec.ID(); id != "" {
				params.Extra[ParamID] = id
			}
			return collection.New(l, WithToken(f, token), params, opts)
		},
	}
}

// StoredQueries builds stored-query collections. Tokens naming an IQR
// session are served by iqr; a nil iqr rejects them.
func StoredQueries(l *loop.Loop, stored, iqr collection.Fetcher, opts collection.Options) StoredBuilder {
	return func(q query.Stored, token string) (*collection.Collection, error) {
		params := collection.Params{
			Query:           q.QueryString(),
			Classifications: q.Classifications(),
			Extra:           q.Extra(),
		}
		f := stored
		if _, ok := q.IQRSession(); ok {
			if iqr == nil {
				return nil, fmt.Errorf("%w: iqr sessions are not configured", domain.ErrInvalidQuery)
			}
			f = iqr
		}
		return collection.New(l, WithToken(f, token), params, opts), nil
	}
}

// WithToken forwards token on every fetch.
func WithToken(f collection.Fetcher, token string) collection.Fetcher {
	if token == "" {
		return f
	}
	return collection.FetcherFunc(func(ctx context.Context, req collection.Request) (collection.Page, error) {
		return f.FetchPage(session.WithToken(ctx, token), req)
	})
}
