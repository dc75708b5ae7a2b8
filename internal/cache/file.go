package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gridsight/weather-index/internal/series"
)

// FileCache implements SeriesCache with one JSON file per key under a root
// directory. Writes go to a temp file in the same directory and are renamed
// into place, so a crash mid-write never leaves a torn entry.
type FileCache struct {
	root string
}

// NewFileCache creates a FileCache rooted at dir, creating it if needed.
func NewFileCache(dir string) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &FileCache{root: dir}, nil
}

// path maps a cache key to a filename. Keys contain separators unsafe in
// filenames; replace them rather than escaping.
func (c *FileCache) path(key string) string {
	name := strings.NewReplacer(":", "_", "/", "_").Replace(key)
	return filepath.Join(c.root, name+".json")
}

// Load reads the snapshot for the key. A missing file is a cache miss, not
// an error.
func (c *FileCache) Load(ctx context.Context, key string) (series.Snapshot, bool, error) {
	if ctx.Err() != nil {
		return nil, false, ctx.Err()
	}
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read cache entry %s: %w", key, err)
	}
	var snap series.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return snap, true, nil
}

// Save atomically replaces the entry for the key.
func (c *FileCache) Save(ctx context.Context, key string, snap series.Snapshot) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	dst := c.path(key)
	tmp, err := os.CreateTemp(c.root, filepath.Base(dst)+".tmp-*")
	if err != nil {
		return fmt.Errorf("write cache entry %s: %w", key, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write cache entry %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write cache entry %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("write cache entry %s: %w", key, err)
	}
	return nil
}
