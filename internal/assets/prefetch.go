package assets

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/snrmed/family-display-backend3/internal/blobstore"
	"github.com/snrmed/family-display-backend3/internal/models"
)

// Prefetcher rotates the current themed packs into dated cache snapshots and
// refills them from the image source. A theme never becomes unresolvable:
// the current pack is copied (not moved) before it is overwritten, and it is
// only overwritten after the theme's new fetch fully succeeded.
type Prefetcher struct {
	store   blobstore.Provider
	source  ImageSource
	logger  *slog.Logger
	expiry  time.Duration
	timeout time.Duration
	now     func() time.Time
}

// NewPrefetcher creates a prefetch scheduler. expiryDays bounds how long
// dated cache packs are kept; fetchTimeout applies per upstream call.
func NewPrefetcher(store blobstore.Provider, source ImageSource, logger *slog.Logger, expiryDays int, fetchTimeout time.Duration) *Prefetcher {
	return &Prefetcher{
		store:   store,
		source:  source,
		logger:  logger,
		expiry:  time.Duration(expiryDays) * 24 * time.Hour,
		timeout: fetchTimeout,
		now:     time.Now,
	}
}

// Prefetch runs one admin-triggered prefetch for the given themes. Themes
// proceed independently: a failed theme is reported in the result, never
// raised, and leaves that theme's current pack untouched.
func (p *Prefetcher) Prefetch(ctx context.Context, themes []string, perTheme int) *models.PrefetchReport {
	date := p.now().Format("2006-01-02")
	report := &models.PrefetchReport{
		Date:   date,
		Themes: make([]models.ThemeReport, len(themes)),
	}

	var wg sync.WaitGroup
	for i, theme := range themes {
		i, theme := i, theme
		wg.Add(1)
		go func() {
			defer wg.Done()
			report.Themes[i] = p.prefetchTheme(ctx, date, theme, perTheme)
		}()
	}
	wg.Wait()

	pruned, err := p.prune(date)
	if err != nil {
		p.logger.Warn("prefetch: prune failed", slog.String("error", err.Error()))
	}
	report.Pruned = pruned
	return report
}

// prefetchTheme performs the copy-then-overwrite rotation for one theme.
func (p *Prefetcher) prefetchTheme(ctx context.Context, date, theme string, perTheme int) models.ThemeReport {
	rep := models.ThemeReport{Theme: theme}

	current, err := p.store.List(CurrentPrefix)
	if err != nil {
		rep.Err = fmt.Sprintf("list current: %v", err)
		return rep
	}
	current = filterTheme(current, theme)

	// Copy (not move) the old current pack into the dated cache snapshot
	// first. Readers mid-resolve keep a valid key either way, and a later
	// failure still leaves the snapshot behind.
	for _, key := range current {
		data, err := p.store.Get(key)
		if err != nil {
			rep.Err = fmt.Sprintf("read %s: %v", key, err)
			return rep
		}
		dest := cacheKeyFor(date, key)
		if err := p.store.Put(dest, data); err != nil {
			rep.Err = fmt.Sprintf("copy to %s: %v", dest, err)
			return rep
		}
		if rep.RolledKey == "" {
			rep.RolledKey = CachePrefix + date + "/"
		}
	}

	// Fetch the replacement pack fully before touching current, so a
	// partial upstream failure leaves the old pack byte-identical.
	images, err := p.fetchPack(ctx, theme, perTheme)
	if err != nil {
		rep.Err = err.Error()
		p.logger.Warn("prefetch: theme fetch failed",
			slog.String("theme", theme),
			slog.String("error", err.Error()))
		return rep
	}

	// Overwrite current only now that the new pack is fully in hand and the
	// old one is safely snapshotted.
	for i, data := range images {
		if err := p.store.Put(currentKey(theme, i), data); err != nil {
			rep.Err = fmt.Sprintf("write current: %v", err)
			return rep
		}
		rep.Saved++
	}

	// Drop stale current keys beyond the new pack size.
	for _, key := range current {
		stale := true
		for i := range images {
			if key == currentKey(theme, i) {
				stale = false
				break
			}
		}
		if stale {
			if err := p.store.Delete(key); err != nil {
				p.logger.Warn("prefetch: stale key delete failed",
					slog.String("key", key),
					slog.String("error", err.Error()))
			}
		}
	}

	return rep
}

// fetchPack downloads a full replacement pack or fails as a unit.
func (p *Prefetcher) fetchPack(ctx context.Context, theme string, perTheme int) ([][]byte, error) {
	searchCtx, cancel := context.WithTimeout(ctx, p.timeout)
	urls, err := p.source.Search(searchCtx, theme, perTheme)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", theme, err)
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("search %s: no images", theme)
	}

	images := make([][]byte, 0, len(urls))
	for _, u := range urls {
		dlCtx, cancel := context.WithTimeout(ctx, p.timeout)
		data, err := p.source.Download(dlCtx, u)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("download %s: %w", theme, err)
		}
		images = append(images, data)
	}
	return images, nil
}

// prune deletes dated cache packs older than the expiry window. The current
// pack lives outside CachePrefix and is never a prune candidate.
func (p *Prefetcher) prune(today string) (int, error) {
	keys, err := p.store.List(CachePrefix)
	if err != nil {
		return 0, err
	}
	cutoff := p.now().Add(-p.expiry).Format("2006-01-02")
	pruned := 0
	for _, key := range keys {
		date := cacheDate(key)
		if date == "" || date >= cutoff || date == today {
			continue
		}
		if err := p.store.Delete(key); err != nil {
			p.logger.Warn("prefetch: prune delete failed",
				slog.String("key", key),
				slog.String("error", err.Error()))
			continue
		}
		pruned++
	}
	return pruned, nil
}
