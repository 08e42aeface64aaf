package cache

import (
	"context"
	"time"
)

// Store is the key-value cache the consistency layer reads through and
// invalidates. Values are opaque bytes; encoding belongs to the caller.
//
// Get reports a missing key as (nil, false, nil). Errors are reserved for
// an unreachable or closed backend.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// DeleteByPrefix removes every key starting with prefix and returns how
	// many were removed.
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)
	Ping(ctx context.Context) error
}

// Closer is implemented by stores that hold resources of their own.
type Closer interface {
	Close() error
}

// CloseStore closes s when it implements Closer.
func CloseStore(s Store) error {
	if c, ok := s.(Closer); ok {
		return c.Close()
	}
	return nil
}
