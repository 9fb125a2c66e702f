package feature

import (
	"encoding/json"
	"fmt"
)

// Record is the feature representation of one image. Records are immutable
// once created, either by lookup of a stored document or by on-demand computation.
type Record struct {
	id        string
	sourceURL string
	features  json.RawMessage
	computed  bool
}

// New creates a feature record. The features blob is copied.
func New(id, sourceURL string, features []byte, computed bool) Record {
	blob := make(json.RawMessage, len(features))
	copy(blob, features)
	return Record{id: id, sourceURL: sourceURL, features: blob, computed: computed}
}

// FromDocument builds a record from a backend JSON document. The document id
// is taken from its "id" field; fallbackID is used when the field is absent.
func FromDocument(doc []byte, sourceURL, fallbackID string, computed bool) (Record, error) {
	var head struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(doc, &head); err != nil {
		return Record{}, fmt.Errorf("decode feature document: %w", err)
	}

	id := fallbackID
	if len(head.ID) > 0 {
		var s string
		if err := json.Unmarshal(head.ID, &s); err == nil {
			id = s
		} else {
			// numeric or otherwise non-string ids are kept verbatim
			id = string(head.ID)
		}
	}
	return New(id, sourceURL, doc, computed), nil
}

// ID returns the document identifier.
func (r *Record) ID() string { return r.id }

// SourceURL returns the image URL the record was resolved for.
func (r *Record) SourceURL() string { return r.sourceURL }

// Features returns a copy of the opaque feature document.
func (r *Record) Features() json.RawMessage {
	out := make(json.RawMessage, len(r.features))
	copy(out, r.features)
	return out
}

// Computed reports whether the record was produced by on-demand computation.
func (r *Record) Computed() bool { return r.computed }

// IsZero reports whether the record is the zero value.
func (r *Record) IsZero() bool { return r.id == "" && len(r.features) == 0 }

// MarshalJSON renders the record for caches and API snapshots.
func (r Record) MarshalJSON() ([]byte, error) {
	features := r.features
	if len(features) == 0 {
		features = json.RawMessage("null")
	}
	return json.Marshal(recordDTO{
		ID:        r.id,
		SourceURL: r.sourceURL,
		Features:  features,
		Computed:  r.computed,
	})
}

// UnmarshalJSON restores a record written by MarshalJSON.
func (r *Record) UnmarshalJSON(data []byte) error {
	var dto recordDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return fmt.Errorf("decode feature record: %w", err)
	}
	*r = New(dto.ID, dto.SourceURL, dto.Features, dto.Computed)
	return nil
}

type recordDTO struct {
	ID        string          `json:"id"`
	SourceURL string          `json:"source_url"`
	Features  json.RawMessage `json:"features"`
	Computed  bool            `json:"computed"`
}
