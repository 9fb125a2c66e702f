// Package image models the search image handed from resolution to a search mode.
package image

import (
	"strings"

	"github.com/kailas-cloud/imagespace/internal/domain/feature"
)

// Kind selects the result-record shape a search strategy expects.
type Kind string

const (
	// Indexed is an arbitrary external image that lives in the document index.
	Indexed Kind = "indexed"
	// Uploaded is an image held in platform-managed storage.
	Uploaded Kind = "uploaded"
)

// Image is the resolved search image.
type Image struct {
	kind     Kind
	imageURL string
	record   feature.Record
}

// Classify picks the image kind for a resolved URL: URLs that contain the
// managed-storage marker are uploads, everything else is indexed.
func Classify(imageURL, managedMarker string) Kind {
	if managedMarker != "" && strings.Contains(imageURL, managedMarker) {
		return Uploaded
	}
	return Indexed
}

// New creates the image variant for imageURL backed by record.
func New(imageURL, managedMarker string, record feature.Record) Image {
	return Image{
		kind:     Classify(imageURL, managedMarker),
		imageURL: imageURL,
		record:   record,
	}
}

// Kind returns the image variant.
func (i *Image) Kind() Kind { return i.kind }

// ImageURL returns the normalized URL the search was issued for.
func (i *Image) ImageURL() string { return i.imageURL }

// Record returns the feature record.
func (i *Image) Record() feature.Record { return i.record }
