// Package storage defines the blob store contract used for persisted
// artifacts. Backends live in subpackages (memory, local, gcs, minio, redis),
// so the artifact layer does not depend on any one storage engine.
package storage

import (
	"context"
	"errors"
	"io"
	"strings"
)

// ErrNotFound is returned by GetObject when the key does not exist.
var ErrNotFound = errors.New("object not found")

// BlobStore is a flat key/value object store.
type BlobStore interface {
	// PutObject writes the object at key and returns a backend URI for it.
	PutObject(ctx context.Context, key string, contentType string, r io.Reader) (string, error)
	// GetObject returns the object body or ErrNotFound.
	GetObject(ctx context.Context, key string) ([]byte, error)
	// DeleteObject removes key. Deleting a missing key is not an error.
	DeleteObject(ctx context.Context, key string) error
	// ListObjects returns every key starting with prefix, sorted.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

// ValidateKey rejects blank keys.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("key is required")
	}
	return nil
}
