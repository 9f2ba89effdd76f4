// Package storage provides the staged object store the pipeline runs on.
// Keys are S3-style paths; each pipeline stage is a key prefix, and
// writing an object under a prefix is what triggers the next processor.
package storage

import (
	"context"
)

// ObjectStore is the S3-style key/value store the pipeline runs on.
// Objects are write-once read-many: no processor overwrites an object it
// did not create.
type ObjectStore interface {
	// Put stores an object at key, overwriting any previous version.
	Put(ctx context.Context, key string, data []byte) error

	// Get retrieves an object. Returns ErrNotFound if absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Copy duplicates src to dst. Returns ErrNotFound if src is absent.
	Copy(ctx context.Context, src, dst string) error

	// Delete removes an object. Returns ErrNotFound if absent.
	Delete(ctx context.Context, key string) error

	// List returns all keys under the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// Exists checks presence without reading data.
	Exists(ctx context.Context, key string) (bool, error)

	// Close releases any resources held by the store.
	Close() error
}

// ErrNotFound is returned when an object doesn't exist.
type ErrNotFound struct {
	Key string
}

func (e ErrNotFound) Error() string {
	return "object not found: " + e.Key
}

// IsNotFound returns true if the error is ErrNotFound.
func IsNotFound(err error) bool {
	_, ok := err.(ErrNotFound)
	return ok
}
