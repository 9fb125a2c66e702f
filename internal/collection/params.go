package collection

import (
	"maps"
	"slices"

	"github.com/kailas-cloud/imagespace/internal/domain/urlstate"
)

// Params are the consumer-writable query parameters of a collection. The
// page is deliberately not part of Params: it is owned by the collection and
// only ever reflects the last successfully fetched page.
type Params struct {
	Query           string            `json:"query,omitempty"`
	Classifications []string          `json:"classifications"`
	Mode            string            `json:"mode,omitempty"`
	Extra           map[string]string `json:"extra,omitempty"`
}

// Clone returns a deep copy so in-flight requests never observe later writes.
func (p Params) Clone() Params {
	out := p
	out.Classifications = slices.Clone(p.Classifications)
	out.Extra = maps.Clone(p.Extra)
	return out
}

// Equal reports whether two parameter sets would produce the same fetch.
// Classification order is significant because it is serialized into URLs.
func (p Params) Equal(o Params) bool {
	return p.Query == o.Query &&
		p.Mode == o.Mode &&
		slices.Equal(p.Classifications, o.Classifications) &&
		maps.Equal(p.Extra, o.Extra)
}

// SetClassifications replaces the classification filter with an ordered set of keys.
func (p *Params) SetClassifications(keys []string) {
	p.Classifications = urlstate.OrderedSet(keys)
}

// Request is one page fetch handed to a Fetcher.
type Request struct {
	Params Params
	Page   int
	Offset int
	Limit  int
}

func (r Request) same(o Request) bool {
	return r.Page == o.Page && r.Limit == o.Limit && r.Params.Equal(o.Params)
}
