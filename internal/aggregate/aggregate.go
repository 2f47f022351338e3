// Package aggregate merges the enabled providers' results into one render
// data record. One degraded provider never fails the whole aggregate.
package aggregate

import (
	"context"
	"sync"
	"time"

	"github.com/snrmed/family-display-backend3/internal/models"
	"github.com/snrmed/family-display-backend3/internal/provider"

	"golang.org/x/sync/errgroup"
)

// CityModeFetch honors the layout's city field; any other mode pins the
// configured default city.
const CityModeFetch = "fetch"

// Aggregator fans out to the enabled providers through the cache and joins
// their results. Total latency is bounded by the slowest provider's timeout,
// not the sum.
type Aggregator struct {
	registry    *provider.Registry
	cache       *provider.Cache
	cityMode    string
	defaultCity string
	themes      []string
	now         func() time.Time
}

// New creates an aggregator.
func New(registry *provider.Registry, cache *provider.Cache, cityMode, defaultCity string, themes []string) *Aggregator {
	return &Aggregator{
		registry:    registry,
		cache:       cache,
		cityMode:    cityMode,
		defaultCity: defaultCity,
		themes:      themes,
		now:         time.Now,
	}
}

// ResolveCity returns the city the providers should fetch for. The layout's
// override only applies in fetch mode.
func (a *Aggregator) ResolveCity(layout *models.Layout) string {
	if a.cityMode == CityModeFetch && layout != nil && layout.City != "" {
		return layout.City
	}
	return a.defaultCity
}

// ResolveTheme returns the theme for a render: the layout's selection when
// present, else the first configured theme.
func (a *Aggregator) ResolveTheme(layout *models.Layout) string {
	if layout != nil && layout.Theme != "" {
		return layout.Theme
	}
	if len(a.themes) > 0 {
		return a.themes[0]
	}
	return ""
}

// Aggregate calls every enabled provider concurrently and returns one
// RenderData with exactly one entry per enabled provider, falling back per
// provider as needed. The only error is a registry misconfiguration.
func (a *Aggregator) Aggregate(ctx context.Context, device string, layout *models.Layout) (*models.RenderData, error) {
	city := a.ResolveCity(layout)
	params := provider.Params{City: city}

	enabled := a.registry.Enabled()
	results := make(map[string]models.ProviderResult, len(enabled))
	var mu sync.Mutex

	g, gCtx := errgroup.WithContext(ctx)
	for _, name := range enabled {
		name := name
		g.Go(func() error {
			res, err := a.cache.Get(gCtx, name, params)
			if err != nil {
				return err
			}
			mu.Lock()
			results[name] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &models.RenderData{
		Date:      a.now().Format("2006-01-02"),
		City:      city,
		Device:    device,
		Theme:     a.ResolveTheme(layout),
		Providers: results,
	}, nil
}
