package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/snrmed/family-display-backend3/internal/models"
)

// graceTTL is how long a fallback result stays cached after retries are
// exhausted, so a failing upstream is not hammered on every render.
const graceTTL = 2 * time.Minute

// retryBackoff returns the delay before retry attempt n (1-based), a fixed
// base doubled per attempt and capped at 2s.
func retryBackoff(n int) time.Duration {
	d := 250 * time.Millisecond << (n - 1)
	if d > 2*time.Second {
		d = 2 * time.Second
	}
	return d
}

type cacheEntry struct {
	result    models.ProviderResult
	expiresAt time.Time
}

// Cache wraps a Registry with a per-provider TTL cache. Entries are keyed by
// provider name plus the request city, since a provider's value may depend
// on it. Failure is local: past this layer the only error is a missing
// provider name.
type Cache struct {
	registry *Registry
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
	inFetch map[string]*sync.WaitGroup
}

// NewCache creates a cache over the given registry.
func NewCache(registry *Registry, logger *slog.Logger) *Cache {
	return &Cache{
		registry: registry,
		logger:   logger,
		now:      time.Now,
		entries:  make(map[string]cacheEntry),
		inFetch:  make(map[string]*sync.WaitGroup),
	}
}

// Get returns the cached result for the named provider, fetching (with the
// provider's timeout and retry budget) on miss or expiry. Exhausted retries
// yield the provider's fallback value, cached for a short grace TTL.
func (c *Cache) Get(ctx context.Context, name string, p Params) (models.ProviderResult, error) {
	reg, ok := c.registry.Lookup(name)
	if !ok {
		return models.ProviderResult{}, fmt.Errorf("provider: unknown provider %q", name)
	}
	key := name + "|" + p.City

	for {
		c.mu.Lock()
		if e, ok := c.entries[key]; ok && c.now().Before(e.expiresAt) {
			c.mu.Unlock()
			return e.result, nil
		}
		// Collapse concurrent fetches for the same key: followers wait for
		// the leader's entry instead of dialing upstream themselves.
		if wg, fetching := c.inFetch[key]; fetching {
			c.mu.Unlock()
			wg.Wait()
			continue
		}
		wg := &sync.WaitGroup{}
		wg.Add(1)
		c.inFetch[key] = wg
		c.mu.Unlock()

		result := c.fetch(ctx, reg, p)

		ttl := reg.TTL
		if result.Fallback {
			ttl = graceTTL
		}
		c.mu.Lock()
		c.entries[key] = cacheEntry{result: result, expiresAt: c.now().Add(ttl)}
		delete(c.inFetch, key)
		c.mu.Unlock()
		wg.Done()
		return result, nil
	}
}

// fetch runs the provider with its retry budget and returns either a fresh
// result or the tagged fallback. It never returns an error.
func (c *Cache) fetch(ctx context.Context, reg Registration, p Params) models.ProviderResult {
	name := reg.Provider.Name()
	var lastErr error
	for attempt := 0; attempt <= reg.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryBackoff(attempt)):
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				lastErr = ctx.Err()
				break
			}
		}
		fetchCtx, cancel := context.WithTimeout(ctx, reg.Timeout)
		value, err := reg.Provider.Fetch(fetchCtx, p)
		cancel()
		if err == nil {
			return models.ProviderResult{Value: value, FetchedAt: c.now()}
		}
		lastErr = err
		c.logger.Debug("provider fetch failed",
			slog.String("provider", name),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()))
		if ctx.Err() != nil {
			break
		}
	}
	c.logger.Warn("provider falling back",
		slog.String("provider", name),
		slog.String("error", errString(lastErr)))
	return models.ProviderResult{
		Value:     reg.Provider.Fallback(),
		FetchedAt: c.now(),
		Fallback:  true,
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
