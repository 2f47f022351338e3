// Package models defines the domain types for the family display backend.
package models

import (
	"encoding/json"
	"time"
)

// Layout is the editable description of what a device's frame shows.
// Exactly one mutable layout exists per device; the designer writes it,
// the renderer reads it.
type Layout struct {
	Elements   []json.RawMessage `json:"elements"`
	Theme      string            `json:"theme,omitempty"`
	DeviceType string            `json:"device_type,omitempty"`
	City       string            `json:"city,omitempty"`
}

// ProviderResult is the outcome of one provider fetch. A fallback result is
// always well-formed: Value is never nil, so rendering never branches on
// provider failure.
type ProviderResult struct {
	Value     json.RawMessage `json:"value"`
	FetchedAt time.Time       `json:"fetched_at"`
	Fallback  bool            `json:"fallback"`
}

// RenderData is the ephemeral merged payload handed to the render engine.
// It is recomputed on every render and never persisted.
type RenderData struct {
	Date      string                    `json:"date"`
	City      string                    `json:"city"`
	Device    string                    `json:"device"`
	Theme     string                    `json:"theme"`
	Providers map[string]ProviderResult `json:"providers"`
}

// AssetTier identifies which source an image asset was resolved from.
type AssetTier string

const (
	TierThemedCurrent  AssetTier = "themed-current"
	TierThemedCache    AssetTier = "themed-cache"
	TierGenericCurrent AssetTier = "generic-current"
	TierGenericBackup  AssetTier = "generic-backup"
	TierPlaceholder    AssetTier = "placeholder"
)

// ImageAsset is a resolved background image reference. Resolution never
// fails: the placeholder tier is always present.
type ImageAsset struct {
	Key  string    `json:"key"`
	Tier AssetTier `json:"tier"`
}

// Placeholder reports whether the asset came from the built-in tier rather
// than the blob store.
func (a ImageAsset) Placeholder() bool {
	return a.Tier == TierPlaceholder
}

// Frame is a rendered bitmap for one device. DatedKey is immutable once
// written; LatestKey is repointed only after the dated write succeeds.
type Frame struct {
	Device     string    `json:"device"`
	DatedKey   string    `json:"dated_key"`
	LatestKey  string    `json:"latest_key"`
	Size       int       `json:"size"`
	ETag       string    `json:"etag"`
	RenderedAt time.Time `json:"rendered_at"`
}

// ThemeReport describes the prefetch outcome for a single theme.
type ThemeReport struct {
	Theme     string `json:"theme"`
	RolledKey string `json:"rolled_key,omitempty"`
	Saved     int    `json:"saved"`
	Err       string `json:"error,omitempty"`
}

// PrefetchReport summarizes one prefetch invocation across all themes.
type PrefetchReport struct {
	Date   string        `json:"date"`
	Themes []ThemeReport `json:"themes"`
	Pruned int           `json:"pruned"`
}
