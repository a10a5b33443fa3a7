package kv

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("key not found")

// Store persists opaque blobs under string keys. Save replaces the whole
// value; implementations must never expose a partially written blob.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, blob []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}
