package cache

import (
	"context"
	"sync"
	"testing"

	"github.com/gridsight/weather-index/internal/series"
)

func sample() series.Snapshot {
	v := 12.5
	return series.Snapshot{
		"20200101": &v,
		"20200102": nil,
	}
}

// TestKey verifies the key layout used for all cache backends.
func TestKey(t *testing.T) {
	got := Key("725300-94846", "isd", series.Hourly)
	want := "isd:725300-94846:hourly"
	if got != want {
		t.Fatalf("Key() = %q, want %q", got, want)
	}
}

// TestInMemoryCache_LoadSave verifies that Save stores snapshots and Load
// retrieves them, including explicit null readings.
func TestInMemoryCache_LoadSave(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	if err := c.Save(ctx, "gsod:725300:daily", sample()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, ok, err := c.Load(ctx, "gsod:725300:daily")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !ok {
		t.Fatal("Load() ok = false, want true")
	}
	if got["20200101"] == nil || *got["20200101"] != 12.5 {
		t.Errorf("Load() value = %v, want 12.5", got["20200101"])
	}
	if v, present := got["20200102"]; !present || v != nil {
		t.Errorf("Load() missing marker lost: present=%v value=%v", present, v)
	}
}

// TestInMemoryCache_ConcurrentSaves verifies the in-memory backend survives
// parallel saves and loads, the access pattern of concurrent prewarming.
// Run with -race.
func TestInMemoryCache_ConcurrentSaves(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()
	keys := []string{"gsod:725300:daily", "gsod:725090:daily", "isd:725300-94846:hourly"}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		for _, key := range keys {
			wg.Add(1)
			go func(key string) {
				defer wg.Done()
				if err := c.Save(ctx, key, sample()); err != nil {
					t.Errorf("Save(%q) error = %v", key, err)
				}
				if _, _, err := c.Load(ctx, key); err != nil {
					t.Errorf("Load(%q) error = %v", key, err)
				}
			}(key)
		}
	}
	wg.Wait()

	for _, key := range keys {
		got, ok, err := c.Load(ctx, key)
		if err != nil || !ok {
			t.Fatalf("Load(%q) = ok=%v err=%v after concurrent saves", key, ok, err)
		}
		if got["20200101"] == nil || *got["20200101"] != 12.5 {
			t.Errorf("Load(%q) value = %v, want 12.5", key, got["20200101"])
		}
	}
}

// TestInMemoryCache_Load_Miss verifies that Load returns ok=false when
// the requested key does not exist in cache.
func TestInMemoryCache_Load_Miss(t *testing.T) {
	_, ok, err := NewInMemoryCache().Load(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if ok {
		t.Error("Load() ok = true, want false for miss")
	}
}
