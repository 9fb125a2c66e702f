package viewmode

import (
	"errors"
	"testing"

	"github.com/kailas-cloud/imagespace/internal/domain"
)

func TestMode_IsValid(t *testing.T) {
	tests := []struct {
		m    Mode
		want bool
	}{
		{List, true},
		{Grid, true},
		{"", false},
		{"table", false},
		{"LIST", false},
	}
	for _, tc := range tests {
		if got := tc.m.IsValid(); got != tc.want {
			t.Errorf("Mode(%q).IsValid() = %v, want %v", tc.m, got, tc.want)
		}
	}
}

func TestParse(t *testing.T) {
	m, err := Parse("list")
	if err != nil || m != List {
		t.Errorf("Parse(list) = %q, %v", m, err)
	}
	if _, err := Parse("table"); !errors.Is(err, domain.ErrInvalidViewMode) {
		t.Errorf("expected ErrInvalidViewMode, got %v", err)
	}
	if Default != Grid {
		t.Errorf("Default = %q", Default)
	}
}
