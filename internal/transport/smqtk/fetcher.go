package smqtk

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/kailas-cloud/imagespace/internal/collection"
	"github.com/kailas-cloud/imagespace/internal/domain"
	"github.com/kailas-cloud/imagespace/internal/domain/query"
	"github.com/kailas-cloud/imagespace/internal/domain/result"
)

const (
	// ChecksumField links IQR results to indexed documents.
	ChecksumField = "sha1sum_s_md"
	// ConfidenceField is added to each hydrated document.
	ConfidenceField = "smqtk_iqr_confidence"
	// DefaultLimit applies when a request carries no limit.
	DefaultLimit = 20
)

// Hydrator resolves checksums to indexed documents.
type Hydrator interface {
	DocumentsByField(ctx context.Context, field string, values []string) ([]json.RawMessage, error)
}

// Fetcher loads IQR session results as collection pages.
type Fetcher struct {
	client       *Client
	hydrator     Hydrator
	defaultLimit int
}

// NewFetcher creates an IQR page fetcher.
func NewFetcher(c *Client, h Hydrator) *Fetcher {
	return &Fetcher{client: c, hydrator: h, defaultLimit: DefaultLimit}
}

// WithDefaultLimit sets the page size used when a request carries no limit.
func (f *Fetcher) WithDefaultLimit(n int) *Fetcher {
	if n > 0 {
		f.defaultLimit = n
	}
	return f
}

// FetchPage implements collection.Fetcher. The session id is taken from an
// "iqr:<sid>" query token.
func (f *Fetcher) FetchPage(ctx context.Context, req collection.Request) (collection.Page, error) {
	sid, ok := strings.CutPrefix(req.Params.Query, query.IQRPrefix)
	if !ok || sid == "" {
		return collection.Page{}, fmt.Errorf("%w: %q is not an iqr session", domain.ErrInvalidQuery, req.Params.Query)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = f.defaultLimit
	}
	offset := max(req.Offset, 0)

	res, err := f.client.Results(ctx, sid, offset, limit)
	if err != nil {
		return collection.Page{}, err
	}

	confidence := make(map[string]float64, len(res.Results))
	shas := make([]string, 0, len(res.Results))
	for _, s := range res.Results {
		if _, seen := confidence[s.SHA1]; !seen {
			shas = append(shas, s.SHA1)
		}
		confidence[s.SHA1] = s.Confidence
	}

	docs, err := f.hydrator.DocumentsByField(ctx, ChecksumField, shas)
	if err != nil {
		return collection.Page{}, fmt.Errorf("hydrate iqr results: %w", err)
	}

	records, err := Rank(docs, confidence)
	if err != nil {
		return collection.Page{}, err
	}

	return collection.Page{
		Records: records,
		Total:   res.Total,
		HasMore: offset+len(res.Results) < res.Total,
	}, nil
}

// Rank annotates documents with their confidence and orders them by
// confidence, then checksum, both descending, so duplicates of one image
// stay adjacent. Documents with no known checksum are dropped.
func Rank(docs []json.RawMessage, confidence map[string]float64) ([]result.Record, error) {
	type ranked struct {
		sha  string
		conf float64
		rec  result.Record
	}

	out := make([]ranked, 0, len(docs))
	for i, doc := range docs {
		// Raw field values pass through untouched; only the confidence is added.
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(doc, &fields); err != nil {
			return nil, fmt.Errorf("decode iqr document %d: %w", i, err)
		}
		var sha string
		if raw, ok := fields[ChecksumField]; ok {
			_ = json.Unmarshal(raw, &sha)
		}
		conf, ok := confidence[sha]
		if !ok {
			continue
		}
		encoded, err := json.Marshal(conf)
		if err != nil {
			return nil, fmt.Errorf("encode iqr confidence %d: %w", i, err)
		}
		fields[ConfidenceField] = encoded

		annotated, err := json.Marshal(fields)
		if err != nil {
			return nil, fmt.Errorf("encode iqr document %d: %w", i, err)
		}
		rec, err := result.FromDocument(annotated)
		if err != nil {
			return nil, fmt.Errorf("iqr document %d: %w", i, err)
		}
		out = append(out, ranked{sha: sha, conf: conf, rec: rec})
	}

	slices.SortStableFunc(out, func(a, b ranked) int {
		if c := cmp.Compare(b.conf, a.conf); c != 0 {
			return c
		}
		return cmp.Compare(b.sha, a.sha)
	})

	records := make([]result.Record, len(out))
	for i, r := range out {
		records[i] = r.rec
	}
	return records, nil
}
