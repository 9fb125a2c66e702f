package girder

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/kailas-cloud/imagespace/internal/collection"
	"github.com/kailas-cloud/imagespace/internal/domain/result"
	"github.com/kailas-cloud/imagespace/internal/domain/urlstate"
)

// Fetcher loads result pages from a search endpoint. It serves both stored
// query collections and image similarity modes.
type Fetcher struct {
	client *Client
	path   string
}

// NewFetcher creates a page fetcher for the given endpoint path.
func NewFetcher(c *Client, path string) *Fetcher {
	return &Fetcher{client: c, path: path}
}

// FetchPage implements collection.Fetcher.
func (f *Fetcher) FetchPage(ctx context.Context, req collection.Request) (collection.Page, error) {
	resp, err := f.client.Search(ctx, f.path, RequestValues(req))
	if err != nil {
		return collection.Page{}, err
	}

	records := make([]result.Record, 0, len(resp.Docs))
	for i, doc := range resp.Docs {
		rec, err := result.FromDocument(doc)
		if err != nil {
			return collection.Page{}, fmt.Errorf("girder search: doc %d: %w", i, err)
		}
		records = append(records, rec)
	}

	return collection.Page{
		Records: records,
		Total:   resp.NumFound,
		HasMore: req.Offset+len(records) < resp.NumFound,
	}, nil
}

// RequestValues renders a collection request as backend query parameters.
func RequestValues(req collection.Request) url.Values {
	v := url.Values{}
	for k, val := range req.Params.Extra {
		v.Set(k, val)
	}
	if req.Params.Query != "" {
		v.Set("query", req.Params.Query)
	}
	if len(req.Params.Classifications) > 0 {
		v.Set("classifications", urlstate.JoinList(req.Params.Classifications))
	}
	v.Set("offset", strconv.Itoa(req.Offset))
	v.Set("limit", strconv.Itoa(req.Limit))
	return v
}
