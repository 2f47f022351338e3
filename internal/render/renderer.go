package render

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/snrmed/family-display-backend3/internal/aggregate"
	"github.com/snrmed/family-display-backend3/internal/apperr"
	"github.com/snrmed/family-display-backend3/internal/assets"
	"github.com/snrmed/family-display-backend3/internal/blobstore"
	"github.com/snrmed/family-display-backend3/internal/checksum"
	"github.com/snrmed/family-display-backend3/internal/models"
	"github.com/snrmed/family-display-backend3/internal/registry"
)

// latestKey returns the mutable "latest" pointer key for a device.
func latestKey(device string) string {
	return "renders/" + device + "/latest.png"
}

// datedKey returns the immutable dated key for a render at time t.
func datedKey(device string, t time.Time) string {
	return "renders/" + device + "/" + t.UTC().Format("2006-01-02_150405") + ".png"
}

// Renderer produces frames: layout + aggregated data + resolved asset, run
// through the engine, persisted dated-then-latest. Renders for the same
// device are serialized; different devices are fully independent.
type Renderer struct {
	store         blobstore.Provider
	layouts       *LayoutService
	agg           *aggregate.Aggregator
	resolver      *assets.Resolver
	engine        Engine
	reg           registry.DeviceRegistry
	logger        *slog.Logger
	width, height int
	engineTimeout time.Duration
	now           func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRenderer creates a frame renderer. reg may be nil; registry updates are
// advisory and never fail a render.
func NewRenderer(store blobstore.Provider, layouts *LayoutService, agg *aggregate.Aggregator, resolver *assets.Resolver, engine Engine, reg registry.DeviceRegistry, logger *slog.Logger, width, height int, engineTimeout time.Duration) *Renderer {
	return &Renderer{
		store:         store,
		layouts:       layouts,
		agg:           agg,
		resolver:      resolver,
		engine:        engine,
		reg:           reg,
		logger:        logger,
		width:         width,
		height:        height,
		engineTimeout: engineTimeout,
		now:           time.Now,
		locks:         map[string]*sync.Mutex{},
	}
}

// deviceLock returns the mutex serializing renders for one device, creating
// it lazily. Unrelated devices never contend.
func (r *Renderer) deviceLock(device string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[device]
	if !ok {
		l = &sync.Mutex{}
		r.locks[device] = l
	}
	return l
}

// RenderData aggregates the provider data a render of this device would use,
// without invoking the engine. Serves the designer live preview.
func (r *Renderer) RenderData(ctx context.Context, device string) (*models.RenderData, error) {
	layout, err := r.layouts.Effective(device)
	if err != nil && !errors.Is(err, apperr.ErrLayoutNotFound) {
		return nil, err
	}
	return r.agg.Aggregate(ctx, device, layout)
}

// Render produces and persists one frame for the device. On engine failure
// the prior latest frame is left untouched; the latest pointer only advances
// after the dated bitmap write succeeded (write-then-publish).
func (r *Renderer) Render(ctx context.Context, device string) (*models.Frame, error) {
	lock := r.deviceLock(device)
	lock.Lock()
	defer lock.Unlock()

	layout, err := r.layouts.Effective(device)
	if err != nil {
		return nil, err
	}

	data, err := r.agg.Aggregate(ctx, device, layout)
	if err != nil {
		return nil, err
	}

	asset, err := r.resolver.Resolve(device, data.Theme)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
	}

	engineCtx, cancel := context.WithTimeout(ctx, r.engineTimeout)
	defer cancel()
	png, err := r.engine.RenderToImage(engineCtx, Request{
		Layout:     layout,
		Data:       data,
		Background: backgroundRef(asset),
		Width:      r.width,
		Height:     r.height,
	})
	if err != nil {
		// Partial output is discarded; nothing was persisted.
		return nil, fmt.Errorf("%w: %v", apperr.ErrRenderEngine, err)
	}

	renderedAt := r.now()
	dated := datedKey(device, renderedAt)
	if err := r.store.Put(dated, png); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
	}
	// Publish only after the dated write is durable. A failure here leaves
	// the prior latest intact and the dated bitmap orphaned, never a
	// partial latest.
	if err := r.store.Put(latestKey(device), png); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
	}

	if r.reg != nil {
		if err := r.reg.MarkRendered(device, renderedAt); err != nil {
			r.logger.Warn("render: registry update failed",
				slog.String("device", device),
				slog.String("error", err.Error()))
		}
	}

	frame := &models.Frame{
		Device:     device,
		DatedKey:   dated,
		LatestKey:  latestKey(device),
		Size:       len(png),
		ETag:       checksum.ETag(png),
		RenderedAt: renderedAt,
	}
	r.logger.Info("frame rendered",
		slog.String("device", device),
		slog.String("key", dated),
		slog.String("tier", string(asset.Tier)),
		slog.Int("bytes", len(png)))
	return frame, nil
}

// Latest returns the device's latest bitmap and its content fingerprint.
// The latest pointer is re-read on every call; no fingerprint outlives the
// pointer it describes.
func (r *Renderer) Latest(device string) ([]byte, string, error) {
	data, err := r.store.Get(latestKey(device))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", apperr.ErrNotFound
		}
		return nil, "", fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
	}
	return data, checksum.ETag(data), nil
}

// MarkSeen records a device poll in the registry, best-effort.
func (r *Renderer) MarkSeen(device, etag string) {
	if r.reg == nil {
		return
	}
	if err := r.reg.MarkSeen(device, etag, r.now()); err != nil {
		r.logger.Warn("render: mark seen failed",
			slog.String("device", device),
			slog.String("error", err.Error()))
	}
}

// backgroundRef turns a resolved asset into the reference the engine
// receives: a store key, or an inline data URI for the built-in placeholder
// which exists only in this binary.
func backgroundRef(asset models.ImageAsset) string {
	if asset.Placeholder() {
		return "data:image/png;base64," + base64.StdEncoding.EncodeToString(assets.Placeholder())
	}
	return asset.Key
}
