package cache_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/synod-labs/synod/internal/port/cache"
	"github.com/synod-labs/synod/internal/port/cache/cachetest"
)

// mapCache is the reference implementation the compliance suite is verified
// against.
type mapCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string][]byte)}
}

func (m *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
	return nil
}

func (m *mapCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

var _ cache.Cache = (*mapCache)(nil)

func TestComplianceSuite(t *testing.T) {
	cachetest.RunComplianceTests(t, newMapCache(), nil)
}
