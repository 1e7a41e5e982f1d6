// Package cache defines the port interface for caching. The synthesis
// service keys decision entries by context fingerprint; adapters range from
// a process-local ristretto cache to a NATS KV bucket shared across
// replicas.
package cache

import (
	"context"
	"time"
)

// Cache is the port interface for key-value caching. A miss is reported
// through the found flag, not an error; errors mean the backend itself
// failed.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
