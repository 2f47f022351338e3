// Package assets implements the prioritized background-image chain: the
// tiered resolver that always terminates with an asset, and the prefetch
// scheduler that rotates themed packs without ever leaving a theme bare.
package assets

import (
	"fmt"
	"strings"
)

// Blob key namespaces for image packs. The "current" pack for a theme is the
// set of keys under CurrentPrefix whose base name starts with "<theme>_";
// rolled-over snapshots live under CachePrefix keyed by invocation date.
const (
	CurrentPrefix        = "pexels/current/"
	CachePrefix          = "pexels/cache/"
	GenericCurrentPrefix = "images/current/"
	GenericBackupPrefix  = "images/backup/"
)

// currentKey returns the current-pack key for the i-th image of a theme.
func currentKey(theme string, i int) string {
	return fmt.Sprintf("%s%s_%d.jpg", CurrentPrefix, theme, i)
}

// cacheKeyFor rebases a current-pack key into the dated cache pack.
func cacheKeyFor(date, currentKey string) string {
	base := currentKey[strings.LastIndex(currentKey, "/")+1:]
	return CachePrefix + date + "/" + base
}

// cacheDate extracts the date segment from a cache key, or "" when the key
// is not shaped like CachePrefix + "<date>/<name>".
func cacheDate(key string) string {
	rest, ok := strings.CutPrefix(key, CachePrefix)
	if !ok {
		return ""
	}
	date, _, ok := strings.Cut(rest, "/")
	if !ok {
		return ""
	}
	return date
}

// themeBase reports whether a pack key's base name belongs to theme.
func themeBase(key, theme string) bool {
	base := key[strings.LastIndex(key, "/")+1:]
	return strings.HasPrefix(base, theme+"_")
}
