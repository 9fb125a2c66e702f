package resolver

import (
	"context"
	"encoding/json"
)

// LookupResult is the document search backend's response.
type LookupResult struct {
	NumFound int               `json:"numFound"`
	Docs     []json.RawMessage `json:"docs"`
}

// Lookup queries the document search backend by identity expression.
type Lookup interface {
	Lookup(ctx context.Context, expression string) (LookupResult, error)
}

// Computer computes a feature document for an image URL.
type Computer interface {
	Compute(ctx context.Context, imageURL string) (json.RawMessage, error)
}
