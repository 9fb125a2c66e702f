package orchestrator

import (
	"fmt"
	"slices"
	"strings"

	"github.com/kailas-cloud/imagespace/internal/collection"
	"github.com/kailas-cloud/imagespace/internal/domain"
	"github.com/kailas-cloud/imagespace/internal/domain/image"
)

// SearchFunc builds the unfetched result collection for an image search.
// It runs on the event loop. token is the requesting user's session token.
type SearchFunc func(img image.Image, token string) *collection.Collection

// Mode is a named image search strategy.
type Mode struct {
	Name     string
	NiceName string
	Search   SearchFunc
}

// DisplayName returns NiceName, or the mode token when there is none.
func (m Mode) DisplayName() string {
	if m.NiceName != "" {
		return m.NiceName
	}
	return m.Name
}

// Registry maps mode tokens to search strategies.
type Registry struct {
	modes map[string]Mode
}

// NewRegistry validates and indexes modes.
func NewRegistry(modes ...Mode) (*Registry, error) {
	r := &Registry{modes: make(map[string]Mode, len(modes))}
	for _, m := range modes {
		if strings.TrimSpace(m.Name) == "" {
			return nil, fmt.Errorf("search mode name is required")
		}
		if m.Search == nil {
			return nil, fmt.Errorf("search mode %q has no search function", m.Name)
		}
		if _, dup := r.modes[m.Name]; dup {
			return nil, fmt.Errorf("search mode %q registered twice", m.Name)
		}
		r.modes[m.Name] = m
	}
	return r, nil
}

// Lookup returns the mode registered under name.
func (r *Registry) Lookup(name string) (Mode, error) {
	m, ok := r.modes[name]
	if !ok {
		return Mode{}, domain.NewUnknownMode(name)
	}
	return m, nil
}

// Names returns the registered mode tokens in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.modes))
	for n := range r.modes {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
