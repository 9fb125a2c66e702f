// Package query defines the per-navigation search query.
package query

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/kailas-cloud/imagespace/internal/domain"
	"github.com/kailas-cloud/imagespace/internal/domain/feature"
	"github.com/kailas-cloud/imagespace/internal/domain/urlstate"
)

// Kind names the orchestration path a query drives.
type Kind string

const (
	// KindStored is a named, pre-defined search invoked by token.
	KindStored Kind = "stored"
	// KindImage is a similarity search by image URL.
	KindImage Kind = "image"
)

// IQRPrefix marks stored query tokens that refer to an IQR session id.
const IQRPrefix = "iqr:"

// SearchQuery is either a Stored or an Image query. Values are immutable.
type SearchQuery interface {
	Kind() Kind
	isSearchQuery()
}

// Stored is a stored-query search: a query string plus an optional params blob.
type Stored struct {
	queryString string
	paramsBlob  string
	params      url.Values
}

// NewStored validates the token and decodes the params blob, a URL-encoded
// query string such as "classifications=A,B".
func NewStored(queryString, paramsBlob string) (Stored, error) {
	if strings.TrimSpace(queryString) == "" {
		return Stored{}, fmt.Errorf("%w: query is required", domain.ErrInvalidQuery)
	}
	params, err := url.ParseQuery(paramsBlob)
	if err != nil {
		return Stored{}, fmt.Errorf("%w: params: %w", domain.ErrInvalidQuery, err)
	}
	return Stored{queryString: queryString, paramsBlob: paramsBlob, params: params}, nil
}

// Kind implements SearchQuery.
func (Stored) Kind() Kind { return KindStored }

func (Stored) isSearchQuery() {}

// QueryString returns the stored query token.
func (s Stored) QueryString() string { return s.queryString }

// ParamsBlob returns the raw params blob.
func (s Stored) ParamsBlob() string { return s.paramsBlob }

// Param returns a single decoded extra parameter.
func (s Stored) Param(name string) string { return s.params.Get(name) }

// Extra returns the decoded params except classifications, flattened to the first value.
func (s Stored) Extra() map[string]string {
	out := make(map[string]string, len(s.params))
	for k, v := range s.params {
		if k == "classifications" || len(v) == 0 {
			continue
		}
		out[k] = v[0]
	}
	return out
}

// Classifications returns the classification filter carried in the params blob.
func (s Stored) Classifications() []string {
	return urlstate.ParseList(s.params.Get("classifications"))
}

// IQRSession returns the session id for "iqr:<sid>" tokens.
func (s Stored) IQRSession() (string, bool) {
	sid, ok := strings.CutPrefix(s.queryString, IQRPrefix)
	if !ok || sid == "" {
		return "", false
	}
	return sid, true
}

// Image is an image similarity query.
type Image struct {
	imageURL string
	mode     string
	resolved *feature.Record
}

// NewImage validates an image query.
func NewImage(imageURL, mode string) (Image, error) {
	if imageURL == "" {
		return Image{}, fmt.Errorf("%w: image url is required", domain.ErrInvalidQuery)
	}
	if mode == "" {
		return Image{}, fmt.Errorf("%w: mode is required", domain.ErrInvalidQuery)
	}
	return Image{imageURL: imageURL, mode: mode}, nil
}

// Kind implements SearchQuery.
func (Image) Kind() Kind { return KindImage }

func (Image) isSearchQuery() {}

// ImageURL returns the image URL.
func (q Image) ImageURL() string { return q.imageURL }

// Mode returns the search mode token.
func (q Image) Mode() string { return q.mode }

// Resolved returns the resolved feature record, if any.
func (q Image) Resolved() (feature.Record, bool) {
	if q.resolved == nil {
		return feature.Record{}, false
	}
	return *q.resolved, true
}

// WithResolved returns a copy of q carrying rec; q itself is unchanged.
func (q Image) WithResolved(rec feature.Record) Image {
	q.resolved = &rec
	return q
}

// WithURL returns a copy of q for a normalized image URL.
func (q Image) WithURL(imageURL string) Image {
	q.imageURL = imageURL
	return q
}
