// Package blobstore defines the blob storage abstraction the pipeline
// persists layouts, asset packs, and rendered frames into.
package blobstore

// Provider is the interface for blob operations. Implementations make no
// transactional multi-key guarantees; callers sequence writes so that
// readers tolerate partial visibility (write-then-publish).
type Provider interface {
	// Get returns the raw bytes stored at key. Missing keys return an
	// error satisfying errors.Is(err, os.ErrNotExist).
	Get(key string) ([]byte, error)
	// Put atomically writes data to key, creating parent namespaces as
	// needed. Atomicity is per-key and best-effort only.
	Put(key string, data []byte) error
	// List returns all keys under prefix, sorted lexicographically.
	List(prefix string) ([]string, error)
	// Delete removes the blob at key.
	Delete(key string) error
	// Exists reports whether a blob is stored at key.
	Exists(key string) (bool, error)
}
