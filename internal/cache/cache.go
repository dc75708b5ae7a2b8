package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/gridsight/weather-index/internal/series"
)

// SeriesCache persists and restores a station's temperature series snapshot.
// Load returns ok=false when no entry exists for the key. Save atomically
// overwrites any prior contents for the key.
type SeriesCache interface {
	Load(ctx context.Context, key string) (series.Snapshot, bool, error)
	Save(ctx context.Context, key string, snap series.Snapshot) error
}

// Key builds the cache key for one station's series: source kind (gsod,
// isd, tmy3, ...), station id and native frequency.
func Key(station, source string, freq series.Frequency) string {
	return fmt.Sprintf("%s:%s:%s", source, station, freq)
}

// InMemoryCache implements SeriesCache using a map. Snapshots are stored by
// reference; callers must not mutate a snapshot after Save. Safe for
// concurrent use: prewarming saves from one goroutine per source.
type InMemoryCache struct {
	mu   sync.RWMutex
	data map[string]series.Snapshot
}

// NewInMemoryCache creates a new in-memory cache instance.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		data: make(map[string]series.Snapshot),
	}
}

// Load retrieves the snapshot for the key if present.
func (c *InMemoryCache) Load(ctx context.Context, key string) (series.Snapshot, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.data[key]
	return snap, ok, nil
}

// Save stores the snapshot, replacing any previous entry for the key.
func (c *InMemoryCache) Save(ctx context.Context, key string, snap series.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = snap
	return nil
}
