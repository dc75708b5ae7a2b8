package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/gridsight/weather-index/internal/cache"
	"github.com/gridsight/weather-index/internal/client"
	"github.com/gridsight/weather-index/internal/config"
	httphandler "github.com/gridsight/weather-index/internal/http"
	"github.com/gridsight/weather-index/internal/lifecycle"
	"github.com/gridsight/weather-index/internal/observability"
	"github.com/gridsight/weather-index/internal/source"
	"github.com/gridsight/weather-index/internal/station"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	var seriesCache cache.SeriesCache
	var memcacheCloser *cache.MemcachedCache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcacheCloser = mc
		seriesCache = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	case "in_memory":
		seriesCache = cache.NewInMemoryCache()
		logger.Info("cache backend: in_memory")
	default:
		fc, err := cache.NewFileCache(cfg.CacheDir)
		if err != nil {
			logger.Fatal("file cache", zap.Error(err))
		}
		seriesCache = fc
		logger.Info("cache backend: file", zap.String("dir", cfg.CacheDir))
	}

	index := station.NewIndex(nil)
	if cfg.StationIndexPath != "" {
		index, err = station.LoadIndex(cfg.StationIndexPath)
		if err != nil {
			logger.Fatal("station index", zap.Error(err))
		}
	}

	registry := source.NewRegistry(source.RegistryConfig{
		Cache:       seriesCache,
		Index:       index,
		Logger:      logger,
		DefaultKind: cfg.DefaultSource,
	})
	registry.Register(client.NewGSODClient(cfg.NOAAAddr, cfg.NOAATimeout))
	registry.Register(client.NewISDClient(cfg.NOAAAddr, cfg.NOAATimeout))
	if cfg.TMY3Dir != "" {
		registry.Register(client.NewTMY3Client(cfg.TMY3Dir))
	}
	if cfg.WundergroundAPIKey != "" {
		wu, err := client.NewWundergroundClient(cfg.WundergroundAPIKey, cfg.WundergroundURL, cfg.WundergroundTimeout)
		if err != nil {
			logger.Fatal("wunderground client", zap.Error(err))
		}
		registry.Register(wu)
	}
	logger.Info("weather sources registered",
		zap.Strings("kinds", registry.Kinds()), zap.String("default", cfg.DefaultSource))

	var zipClient *station.ZiplocateClient
	var nrelClient *station.NRELClient
	if cfg.NRELAPIKey != "" {
		zipClient = station.NewZiplocateClient(cfg.ZiplocateURL, 10*time.Second)
		nrelClient = station.NewNRELClient(cfg.NRELAPIKey, cfg.NRELURL, 10*time.Second)
		logger.Info("ZIP-to-station geocoding enabled")
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	var cachePing func() error
	if memcacheCloser != nil {
		cachePing = memcacheCloser.Ping
	}
	handler := httphandler.NewHandler(registry, zipClient, nrelClient, logger, cachePing)
	router := httphandler.NewRouter(handler, logger, limiter, cfg.RequestTimeout)

	if len(cfg.PrewarmStations) > 0 {
		year := time.Now().UTC().Year()
		first := year - cfg.PrewarmYearsBack
		sources := make([]*source.WeatherSource, 0, len(cfg.PrewarmStations))
		warmCtx, warmCancel := context.WithTimeout(context.Background(), 10*time.Minute)
		for _, code := range cfg.PrewarmStations {
			src, err := registry.Source(warmCtx, code, "")
			if err != nil {
				logger.Warn("prewarm source construction failed", zap.String("station", code), zap.Error(err))
				continue
			}
			sources = append(sources, src)
		}
		warmer := source.NewPrewarmer(logger)
		if err := warmer.Warm(warmCtx, sources, first, year); err != nil {
			logger.Warn("cache prewarm failed", zap.Error(err))
		}
		warmCancel()
		if cfg.PrewarmInterval > 0 {
			go func() {
				if err := warmer.WarmPeriodic(context.Background(), sources, first, year, cfg.PrewarmInterval); err != nil && err != context.Canceled {
					logger.Error("periodic prewarm stopped", zap.Error(err))
				}
			}()
		}
	}

	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
		// Interval queries can block on multi-year FTP fetches; the write
		// timeout has to cover the request budget.
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 10*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
