package assets

import (
	"testing"

	"github.com/snrmed/family-display-backend3/internal/blobstore"
	"github.com/snrmed/family-display-backend3/internal/models"
)

func tempStore(t *testing.T) blobstore.Provider {
	t.Helper()
	store, err := blobstore.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return store
}

func TestResolveEmptyStoreReturnsPlaceholder(t *testing.T) {
	r := NewResolver(tempStore(t))
	asset, err := r.Resolve("dev1", "kids")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if asset.Tier != models.TierPlaceholder {
		t.Errorf("tier = %s, want placeholder", asset.Tier)
	}
	if asset.Key != PlaceholderKey {
		t.Errorf("key = %q", asset.Key)
	}
	if len(Placeholder()) == 0 {
		t.Error("placeholder bytes must be embedded")
	}
}

func TestResolveBackupPoolWhenNoPacks(t *testing.T) {
	store := tempStore(t)
	if err := store.Put("images/backup/img1.jpg", []byte("jpg")); err != nil {
		t.Fatal(err)
	}
	r := NewResolver(store)

	asset, err := r.Resolve("dev1", "kids")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if asset.Key != "images/backup/img1.jpg" {
		t.Errorf("key = %q, want images/backup/img1.jpg", asset.Key)
	}
	if asset.Tier != models.TierGenericBackup {
		t.Errorf("tier = %s, want generic-backup", asset.Tier)
	}
}

func TestResolvePrefersThemedCurrent(t *testing.T) {
	store := tempStore(t)
	_ = store.Put("pexels/current/kids_0.jpg", []byte("a"))
	_ = store.Put("pexels/cache/2026-08-01/kids_0.jpg", []byte("b"))
	_ = store.Put("images/current/generic.jpg", []byte("c"))
	_ = store.Put("images/backup/img1.jpg", []byte("d"))
	r := NewResolver(store)

	asset, err := r.Resolve("dev1", "kids")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if asset.Tier != models.TierThemedCurrent {
		t.Errorf("tier = %s, want themed-current", asset.Tier)
	}
	if asset.Key != "pexels/current/kids_0.jpg" {
		t.Errorf("key = %q", asset.Key)
	}
}

func TestResolveMostRecentCachePack(t *testing.T) {
	store := tempStore(t)
	_ = store.Put("pexels/cache/2026-07-01/kids_0.jpg", []byte("old"))
	_ = store.Put("pexels/cache/2026-08-15/kids_0.jpg", []byte("new"))
	_ = store.Put("pexels/cache/2026-08-15/photo_0.jpg", []byte("other theme"))
	r := NewResolver(store)

	asset, err := r.Resolve("dev1", "kids")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if asset.Tier != models.TierThemedCache {
		t.Errorf("tier = %s, want themed-cache", asset.Tier)
	}
	if asset.Key != "pexels/cache/2026-08-15/kids_0.jpg" {
		t.Errorf("key = %q, want the most recent dated pack", asset.Key)
	}
}

func TestResolveGenericCurrentBeforeBackup(t *testing.T) {
	store := tempStore(t)
	_ = store.Put("images/current/a.jpg", []byte("a"))
	_ = store.Put("images/backup/b.jpg", []byte("b"))
	r := NewResolver(store)

	asset, err := r.Resolve("dev1", "kids")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if asset.Tier != models.TierGenericCurrent {
		t.Errorf("tier = %s, want generic-current", asset.Tier)
	}
}

func TestResolveOtherThemeCurrentDoesNotMatch(t *testing.T) {
	store := tempStore(t)
	_ = store.Put("pexels/current/photo_0.jpg", []byte("a"))
	_ = store.Put("images/backup/img1.jpg", []byte("b"))
	r := NewResolver(store)

	asset, err := r.Resolve("dev1", "kids")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if asset.Tier != models.TierGenericBackup {
		t.Errorf("tier = %s, want generic-backup (photo pack is not kids)", asset.Tier)
	}
}

func TestResolveSeesStoreMutations(t *testing.T) {
	store := tempStore(t)
	r := NewResolver(store)

	asset, _ := r.Resolve("dev1", "kids")
	if asset.Tier != models.TierPlaceholder {
		t.Fatalf("tier = %s, want placeholder before write", asset.Tier)
	}

	// No decision caching: a pack added between renders is picked up.
	_ = store.Put("pexels/current/kids_0.jpg", []byte("a"))
	asset, _ = r.Resolve("dev1", "kids")
	if asset.Tier != models.TierThemedCurrent {
		t.Errorf("tier = %s, want themed-current after write", asset.Tier)
	}
}

func TestPickIsDeterministicPerDay(t *testing.T) {
	store := tempStore(t)
	_ = store.Put("pexels/current/kids_0.jpg", []byte("a"))
	_ = store.Put("pexels/current/kids_1.jpg", []byte("b"))
	_ = store.Put("pexels/current/kids_2.jpg", []byte("c"))
	r := NewResolver(store)

	first, _ := r.Resolve("dev1", "kids")
	for i := 0; i < 5; i++ {
		again, _ := r.Resolve("dev1", "kids")
		if again.Key != first.Key {
			t.Fatalf("pick changed within a day: %q vs %q", again.Key, first.Key)
		}
	}
}
