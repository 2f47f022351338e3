package api

import (
	"log/slog"
	"time"

	"github.com/snrmed/family-display-backend3/internal/assets"
	"github.com/snrmed/family-display-backend3/internal/registry"
	"github.com/snrmed/family-display-backend3/internal/render"
)

// Service bundles the pipeline components the API layer exposes.
type Service struct {
	Renderer *render.Renderer
	Layouts  *render.LayoutService
	Prefetch *assets.Prefetcher
	Registry registry.DeviceRegistry

	// Prefetch defaults when the request body omits them.
	Themes        []string
	PerThemeCount int
}

// EnsureDevice upserts a device row, best-effort. Registry failures are
// logged, never surfaced.
func (s *Service) EnsureDevice(device string) {
	if s.Registry == nil {
		return
	}
	if err := s.Registry.Ensure(device, time.Now()); err != nil {
		slog.Warn("device ensure failed",
			slog.String("device", device),
			slog.String("error", err.Error()))
	}
}
