package girder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/kailas-cloud/imagespace/internal/usecase/resolver"
)

// docsPerValue bounds hydration lookups: one checksum may map to several documents.
const docsPerValue = 10

// Lookup finds stored feature documents through the search endpoint.
type Lookup struct {
	client *Client
	path   string
}

// NewLookup creates a feature lookup against the given endpoint path.
func NewLookup(c *Client, path string) *Lookup {
	return &Lookup{client: c, path: path}
}

// Lookup implements resolver.Lookup.
func (l *Lookup) Lookup(ctx context.Context, expression string) (resolver.LookupResult, error) {
	resp, err := l.client.Search(ctx, l.path, url.Values{"query": {expression}})
	if err != nil {
		return resolver.LookupResult{}, err
	}
	return resolver.LookupResult{NumFound: resp.NumFound, Docs: resp.Docs}, nil
}

// DocumentsByField returns every document whose field equals one of values.
func (l *Lookup) DocumentsByField(ctx context.Context, field string, values []string) ([]json.RawMessage, error) {
	if len(values) == 0 {
		return nil, nil
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%s:%q", field, v)
	}
	params := url.Values{
		"query": {strings.Join(parts, " OR ")},
		"limit": {fmt.Sprint(len(values) * docsPerValue)},
	}
	resp, err := l.client.Search(ctx, l.path, params)
	if err != nil {
		return nil, err
	}
	return resp.Docs, nil
}

// Computer requests on-demand feature computation. Calls are throttled by
// the client's compute limiter.
type Computer struct {
	client *Client
	path   string
}

// NewComputer creates a feature computer against the given endpoint path.
func NewComputer(c *Client, path string) *Computer {
	return &Computer{client: c, path: path}
}

// Compute implements resolver.Computer.
func (c *Computer) Compute(ctx context.Context, imageURL string) (json.RawMessage, error) {
	if err := c.client.compute.Wait(ctx); err != nil {
		return nil, fmt.Errorf("girder compute: throttle: %w", err)
	}
	return c.client.PostForm(ctx, "compute", c.path, url.Values{"url": {imageURL}})
}
