package assets

import (
	_ "embed"
	"fmt"
	"hash/fnv"
	"sort"
	"time"

	"github.com/snrmed/family-display-backend3/internal/blobstore"
	"github.com/snrmed/family-display-backend3/internal/models"
)

// placeholderPNG is the built-in final tier. It is compiled into the binary,
// so resolution can never fail even with an empty store.
//
//go:embed placeholder.png
var placeholderPNG []byte

// PlaceholderKey is the synthetic key reported for the built-in tier.
const PlaceholderKey = "builtin/placeholder.png"

// Placeholder returns the built-in placeholder image bytes.
func Placeholder() []byte {
	return placeholderPNG
}

// Resolver walks the prioritized asset tiers and returns the first
// resolvable reference. Existence is checked against the live store listing
// on every call; the resolution decision itself is never cached, so store
// mutations between renders are picked up immediately.
type Resolver struct {
	store blobstore.Provider
	now   func() time.Time
}

// NewResolver creates a resolver over the given store.
func NewResolver(store blobstore.Provider) *Resolver {
	return &Resolver{store: store, now: time.Now}
}

// Resolve returns an asset for the device/theme pair. Tier order:
// current themed pack, most recent dated cache pack, generic current pool,
// generic backup pool, built-in placeholder.
func (r *Resolver) Resolve(device, theme string) (models.ImageAsset, error) {
	if key, ok, err := r.fromCurrent(theme); err != nil {
		return models.ImageAsset{}, err
	} else if ok {
		return models.ImageAsset{Key: key, Tier: models.TierThemedCurrent}, nil
	}
	if key, ok, err := r.fromCache(theme); err != nil {
		return models.ImageAsset{}, err
	} else if ok {
		return models.ImageAsset{Key: key, Tier: models.TierThemedCache}, nil
	}
	for _, pool := range []struct {
		prefix string
		tier   models.AssetTier
	}{
		{GenericCurrentPrefix, models.TierGenericCurrent},
		{GenericBackupPrefix, models.TierGenericBackup},
	} {
		keys, err := r.store.List(pool.prefix)
		if err != nil {
			return models.ImageAsset{}, fmt.Errorf("assets: list %s: %w", pool.prefix, err)
		}
		if len(keys) > 0 {
			return models.ImageAsset{Key: r.pick(keys, device, theme), Tier: pool.tier}, nil
		}
	}
	return models.ImageAsset{Key: PlaceholderKey, Tier: models.TierPlaceholder}, nil
}

func (r *Resolver) fromCurrent(theme string) (string, bool, error) {
	keys, err := r.store.List(CurrentPrefix)
	if err != nil {
		return "", false, fmt.Errorf("assets: list current: %w", err)
	}
	themed := filterTheme(keys, theme)
	if len(themed) == 0 {
		return "", false, nil
	}
	return r.pick(themed, "", theme), true, nil
}

// fromCache finds the most recent dated cache pack containing the theme.
func (r *Resolver) fromCache(theme string) (string, bool, error) {
	keys, err := r.store.List(CachePrefix)
	if err != nil {
		return "", false, fmt.Errorf("assets: list cache: %w", err)
	}
	byDate := map[string][]string{}
	for _, k := range keys {
		if d := cacheDate(k); d != "" && themeBase(k, theme) {
			byDate[d] = append(byDate[d], k)
		}
	}
	if len(byDate) == 0 {
		return "", false, nil
	}
	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	latest := byDate[dates[0]]
	return r.pick(latest, "", theme), true, nil
}

// pick selects one key deterministically per day, so a device shows the same
// background all day but rotates through its pack over time.
func (r *Resolver) pick(keys []string, device, theme string) string {
	sort.Strings(keys)
	h := fnv.New32a()
	h.Write([]byte(r.now().Format("20060102") + "|" + device + "|" + theme))
	return keys[int(h.Sum32())%len(keys)]
}

func filterTheme(keys []string, theme string) []string {
	var out []string
	for _, k := range keys {
		if themeBase(k, theme) {
			out = append(out, k)
		}
	}
	return out
}
