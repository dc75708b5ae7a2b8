package source

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/gridsight/weather-index/internal/cache"
	"github.com/gridsight/weather-index/internal/client"
	"github.com/gridsight/weather-index/internal/station"
)

// ErrUnknownSource means the requested source kind has no registered client.
var ErrUnknownSource = errors.New("unknown weather source kind")

// RegistryConfig holds the shared dependencies for all weather sources.
type RegistryConfig struct {
	Cache       cache.SeriesCache
	Index       *station.Index
	Logger      *zap.Logger
	Clock       clockwork.Clock
	DefaultKind string
}

// Registry constructs and memoizes WeatherSources per (station, kind).
// Each source gets its own client-injected engine; a failed construction
// for one station never affects another.
type Registry struct {
	cache       cache.SeriesCache
	index       *station.Index
	logger      *zap.Logger
	clock       clockwork.Clock
	defaultKind string

	clients map[string]client.RemoteDataClient

	mu      sync.Mutex
	sources map[string]*WeatherSource
}

// NewRegistry creates an empty registry; register clients before use.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Index == nil {
		cfg.Index = station.NewIndex(nil)
	}
	return &Registry{
		cache:       cfg.Cache,
		index:       cfg.Index,
		logger:      cfg.Logger,
		clock:       cfg.Clock,
		defaultKind: cfg.DefaultKind,
		clients:     make(map[string]client.RemoteDataClient),
		sources:     make(map[string]*WeatherSource),
	}
}

// Register makes a remote client available under its Kind.
func (r *Registry) Register(c client.RemoteDataClient) {
	r.clients[c.Kind()] = c
}

// Kinds returns the registered source kinds.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.clients))
	for k := range r.clients {
		kinds = append(kinds, k)
	}
	return kinds
}

// Source returns the WeatherSource for the station and source kind,
// constructing it on first use. kind "" selects the configured default.
func (r *Registry) Source(ctx context.Context, stationCode, kind string) (*WeatherSource, error) {
	if kind == "" {
		kind = r.defaultKind
	}
	c, ok := r.clients[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, kind)
	}

	key := kind + ":" + stationCode
	r.mu.Lock()
	if src, ok := r.sources[key]; ok {
		r.mu.Unlock()
		return src, nil
	}
	r.mu.Unlock()

	// Construction can fetch over the network; keep it outside the lock
	// and tolerate a duplicate build racing in.
	src, err := New(ctx, Config{
		Station:    stationCode,
		Candidates: r.index.Resolve(stationCode),
		Client:     c,
		Cache:      r.cache,
		Logger:     r.logger,
		Clock:      r.clock,
	})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sources[key]; ok {
		return existing, nil
	}
	r.sources[key] = src
	return src, nil
}
