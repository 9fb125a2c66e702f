package viewmode

import (
	"fmt"

	"github.com/kailas-cloud/imagespace/internal/domain"
)

// Mode is the result layout preference.
type Mode string

// View mode constants.
const (
	List Mode = "list"
	Grid Mode = "grid"
	// Default applies when no preference has been stored.
	Default = Grid
)

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == List || m == Grid
}

// Parse validates a stored or requested view mode.
func Parse(s string) (Mode, error) {
	m := Mode(s)
	if !m.IsValid() {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidViewMode, s)
	}
	return m, nil
}
