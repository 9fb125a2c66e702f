// Package preference persists user interface preferences.
package preference

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/imagespace/internal/db"
	"github.com/kailas-cloud/imagespace/internal/domain"
	"github.com/kailas-cloud/imagespace/internal/domain/viewmode"
)

var viewModeKey = domain.KeyPrefix + "pref:viewMode"

// store is the consumer interface for preference storage (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Repo keeps preferences in the key-value store.
type Repo struct {
	store  store
	logger *zap.Logger
}

// New creates a preference repository.
func New(s store, logger *zap.Logger) *Repo {
	return &Repo{store: s, logger: logger}
}

// ViewMode returns the stored view mode, or viewmode.Default when none is
// stored or the stored value is unusable.
func (r *Repo) ViewMode(ctx context.Context) (viewmode.Mode, error) {
	data, err := r.store.Get(ctx, viewModeKey)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return viewmode.Default, nil
		}
		return viewmode.Default, fmt.Errorf("get view mode: %w", err)
	}

	mode, err := viewmode.Parse(string(data))
	if err != nil {
		r.logger.Warn("Ignoring invalid stored view mode", zap.ByteString("value", data))
		return viewmode.Default, nil
	}
	return mode, nil
}

// SetViewMode stores the view mode.
func (r *Repo) SetViewMode(ctx context.Context, mode viewmode.Mode) error {
	if !mode.IsValid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidViewMode, mode)
	}
	if err := r.store.Set(ctx, viewModeKey, []byte(mode)); err != nil {
		return fmt.Errorf("set view mode: %w", err)
	}
	return nil
}

// Memory keeps preferences in process memory. It is used when no database
// is configured.
type Memory struct {
	mu   sync.RWMutex
	mode viewmode.Mode
}

// NewMemory creates an in-memory preference store.
func NewMemory() *Memory {
	return &Memory{mode: viewmode.Default}
}

// ViewMode returns the current view mode.
func (m *Memory) ViewMode(context.Context) (viewmode.Mode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode, nil
}

// SetViewMode stores the view mode.
func (m *Memory) SetViewMode(_ context.Context, mode viewmode.Mode) error {
	if !mode.IsValid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidViewMode, mode)
	}
	m.mu.Lock()
	m.mode = mode
	m.mu.Unlock()
	return nil
}
