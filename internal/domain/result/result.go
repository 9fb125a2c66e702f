package result

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// scoreFields are the document fields that can carry a ranking score, in priority order.
var scoreFields = []string{"score", "smqtk_iqr_confidence", "im_distance"}

// Record is a single search hit.
type Record struct {
	id       string
	imageURL string
	score    *float64
	fields   map[string]any
}

// New creates a search result record.
func New(id, imageURL string, score *float64, fields map[string]any) Record {
	return Record{id: id, imageURL: imageURL, score: score, fields: fields}
}

// FromDocument decodes a backend document. Only "id" is required. Numbers
// are kept as json.Number so integer ids survive re-encoding.
func FromDocument(doc json.RawMessage) (Record, error) {
	var fields map[string]any
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return Record{}, fmt.Errorf("decode result document: %w", err)
	}
	if dec.More() {
		return Record{}, fmt.Errorf("decode result document: trailing data")
	}

	id, _ := fields["id"].(string)
	if id == "" {
		return Record{}, fmt.Errorf("result document has no id")
	}

	imageURL, _ := fields["url"].(string)

	var score *float64
	for _, f := range scoreFields {
		n, ok := fields[f].(json.Number)
		if !ok {
			continue
		}
		if v, err := n.Float64(); err == nil {
			score = &v
			break
		}
	}

	return New(id, imageURL, score, fields), nil
}

// ID returns the document identifier.
func (r *Record) ID() string { return r.id }

// ImageURL returns the image URL, if the document carries one.
func (r *Record) ImageURL() string { return r.imageURL }

// Score returns the ranking score and whether the document had one.
func (r *Record) Score() (float64, bool) {
	if r.score == nil {
		return 0, false
	}
	return *r.score, true
}

// Fields returns the raw document fields.
func (r *Record) Fields() map[string]any { return r.fields }

// Field returns a single raw field.
func (r *Record) Field(name string) (any, bool) {
	v, ok := r.fields[name]
	return v, ok
}
