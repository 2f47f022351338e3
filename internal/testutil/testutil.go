// Package testutil provides shared test helpers for setting up blob stores
// and device registries.
package testutil

import (
	"os"
	"testing"

	"github.com/snrmed/family-display-backend3/internal/blobstore"
	"github.com/snrmed/family-display-backend3/internal/registry"
)

// TestStore creates a temporary blob store that is automatically cleaned up.
func TestStore(t *testing.T) (string, blobstore.Provider) {
	t.Helper()
	dir := t.TempDir()
	store, err := blobstore.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// TestRegistry creates a temporary SQLite device registry that is
// automatically cleaned up.
func TestRegistry(t *testing.T) *registry.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "display-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := registry.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
