package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/gridsight/weather-index/internal/series"
)

const keyPrefix = "tempseries:"

// MemcachedCache implements SeriesCache using memcached. Entries are written
// without expiration: a series snapshot only ever grows and is rewritten
// whole after every merge, so stale reads are refreshed on the next save.
type MemcachedCache struct {
	client *memcache.Client
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// configure the client; both use package defaults if zero.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedCache{client: client}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (c *MemcachedCache) key(k string) string {
	return keyPrefix + k
}

// Load implements SeriesCache.Load. Returns false, nil on cache miss; false, err on error.
func (c *MemcachedCache) Load(ctx context.Context, key string) (series.Snapshot, bool, error) {
	if ctx.Err() != nil {
		return nil, false, ctx.Err()
	}
	item, err := c.client.Get(c.key(key))
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return nil, false, nil
		}
		return nil, false, err
	}
	var snap series.Snapshot
	if err := json.Unmarshal(item.Value, &snap); err != nil {
		return nil, false, err
	}
	return snap, true, nil
}

// Save implements SeriesCache.Save.
func (c *MemcachedCache) Save(ctx context.Context, key string, snap series.Snapshot) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.client.Set(&memcache.Item{
		Key:   c.key(key),
		Value: raw,
	})
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
