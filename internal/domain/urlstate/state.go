// Package urlstate models the navigable query-string state of the result view.
package urlstate

import (
	"net/url"
	"strconv"
	"strings"
)

// State is the subset of the URL query string owned by the search view.
// Nil fields are absent from the URL.
type State struct {
	Page            *int    `json:"page,omitempty"`
	Classifications *string `json:"classifications,omitempty"`
	Query           *string `json:"query,omitempty"`
	URL             *string `json:"url,omitempty"`
	Mode            *string `json:"mode,omitempty"`
}

// PageState returns a state carrying only a 1-based page.
func PageState(page int) State {
	return State{Page: &page}
}

// ClassificationsState returns a state carrying only a joined classification list.
func ClassificationsState(keys []string) State {
	joined := JoinList(keys)
	return State{Classifications: &joined}
}

// Merge returns s with every field set in update overriding the current value.
func (s State) Merge(update State) State {
	if update.Page != nil {
		s.Page = update.Page
	}
	if update.Classifications != nil {
		s.Classifications = update.Classifications
	}
	if update.Query != nil {
		s.Query = update.Query
	}
	if update.URL != nil {
		s.URL = update.URL
	}
	if update.Mode != nil {
		s.Mode = update.Mode
	}
	return s
}

// Values renders the state as URL query values.
func (s State) Values() url.Values {
	v := url.Values{}
	if s.Page != nil {
		v.Set("page", strconv.Itoa(*s.Page))
	}
	if s.Classifications != nil {
		v.Set("classifications", *s.Classifications)
	}
	if s.Query != nil {
		v.Set("query", *s.Query)
	}
	if s.URL != nil {
		v.Set("url", *s.URL)
	}
	if s.Mode != nil {
		v.Set("mode", *s.Mode)
	}
	return v
}

// Encode renders the state as a sorted query string.
func (s State) Encode() string {
	return s.Values().Encode()
}

// ParseList splits a comma-joined list into an ordered set: blanks dropped,
// duplicates removed, first occurrence wins.
func ParseList(s string) []string {
	if s == "" {
		return nil
	}
	return OrderedSet(strings.Split(s, ","))
}

// JoinList joins keys with commas.
func JoinList(keys []string) string {
	return strings.Join(keys, ",")
}

// OrderedSet trims keys, drops blanks and keeps the first occurrence of each key.
func OrderedSet(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
