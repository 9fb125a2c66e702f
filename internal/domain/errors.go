package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrResolutionFailure signals a feature lookup or computation failure.
	ErrResolutionFailure = errors.New("feature resolution failed")
	// ErrSearchDispatchFailure signals that a search strategy's fetch failed.
	ErrSearchDispatchFailure = errors.New("search dispatch failed")
	// ErrUnknownMode signals a navigation to a search mode that is not registered.
	ErrUnknownMode = errors.New("unknown search mode")
	// ErrInvalidQuery signals a malformed stored query or params blob.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrNoActiveSearch signals an operation that needs a bound result view.
	ErrNoActiveSearch = errors.New("no active search")
	// ErrSuperseded signals that a newer navigation replaced the one being awaited.
	ErrSuperseded = errors.New("superseded by a newer search")
	// ErrInvalidViewMode signals a view mode outside {list, grid}.
	ErrInvalidViewMode = errors.New("invalid view mode")
)

// UnknownModeError carries the offending mode token.
type UnknownModeError struct {
	Mode string
}

func (e *UnknownModeError) Error() string {
	return fmt.Sprintf("%s: %q", ErrUnknownMode.Error(), e.Mode)
}

func (e *UnknownModeError) Unwrap() error { return ErrUnknownMode }

// NewUnknownMode creates a configuration error for an unregistered mode.
func NewUnknownMode(mode string) error {
	return &UnknownModeError{Mode: mode}
}
