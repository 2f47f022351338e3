package api

import (
	"github.com/snrmed/family-display-backend3/internal/models"
	"github.com/snrmed/family-display-backend3/internal/registry"
)

// PrefetchRequest is the request body for triggering a prefetch. Both
// fields are optional; configured defaults apply.
type PrefetchRequest struct {
	Themes        []string `json:"themes,omitempty"`
	PerThemeCount int      `json:"per_theme_count,omitempty"`
}

// LayoutSaved confirms a stored layout.
type LayoutSaved struct {
	OK     bool   `json:"ok"`
	Device string `json:"device"`
}

// DeviceListResponse wraps the device registry listing.
type DeviceListResponse struct {
	Devices []registry.DeviceRow `json:"devices"`
}

// RenderData is the aggregated payload response (aliased from the domain
// layer).
type RenderData = models.RenderData

// Frame is the render result response (aliased from the domain layer).
type Frame = models.Frame

// PrefetchReport is the prefetch result response (aliased from the domain
// layer).
type PrefetchReport = models.PrefetchReport
