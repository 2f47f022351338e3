// Package render implements the frame-production pipeline: layout loading,
// render-engine invocation, durable frame persistence, and the conditional
// read path devices poll.
package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/snrmed/family-display-backend3/internal/apperr"
	"github.com/snrmed/family-display-backend3/internal/blobstore"
	"github.com/snrmed/family-display-backend3/internal/models"
	"github.com/snrmed/family-display-backend3/internal/presets"
)

// layoutKey returns the blob key of a device's current layout.
func layoutKey(device string) string {
	return "layouts/" + device + ".json"
}

// LayoutService reads and writes per-device layouts, falling back to the
// local default preset for devices that never stored one.
type LayoutService struct {
	store   blobstore.Provider
	presets *presets.Store
}

// NewLayoutService creates a layout service. presetStore may be nil when no
// default preset is configured.
func NewLayoutService(store blobstore.Provider, presetStore *presets.Store) *LayoutService {
	return &LayoutService{store: store, presets: presetStore}
}

// Stored returns the device's stored layout only; no preset fallback.
func (s *LayoutService) Stored(device string) (*models.Layout, error) {
	data, err := s.store.Get(layoutKey(device))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrLayoutNotFound
		}
		return nil, fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
	}
	var layout models.Layout
	if err := json.Unmarshal(data, &layout); err != nil {
		return nil, fmt.Errorf("layout %s: %w", device, err)
	}
	return &layout, nil
}

// Effective returns the layout a render should use: the stored layout when
// present, else the default preset, else ErrLayoutNotFound.
func (s *LayoutService) Effective(device string) (*models.Layout, error) {
	layout, err := s.Stored(device)
	if err == nil {
		return layout, nil
	}
	if !errors.Is(err, apperr.ErrLayoutNotFound) {
		return nil, err
	}
	if s.presets != nil {
		if preset := s.presets.Current(); preset != nil {
			return preset, nil
		}
	}
	return nil, apperr.ErrLayoutNotFound
}

// Put stores the device's layout.
func (s *LayoutService) Put(device string, layout *models.Layout) error {
	data, err := json.MarshalIndent(layout, "", "  ")
	if err != nil {
		return fmt.Errorf("layout %s: marshal: %w", device, err)
	}
	if err := s.store.Put(layoutKey(device), data); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
	}
	return nil
}
