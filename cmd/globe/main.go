package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/station-globe/internal/adapter/fixture"
	"github.com/couchcryptid/station-globe/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/station-globe/internal/adapter/kafka"
	"github.com/couchcryptid/station-globe/internal/adapter/mapbox"
	"github.com/couchcryptid/station-globe/internal/adapter/radiobrowser"
	"github.com/couchcryptid/station-globe/internal/config"
	"github.com/couchcryptid/station-globe/internal/domain"
	"github.com/couchcryptid/station-globe/internal/geocache"
	"github.com/couchcryptid/station-globe/internal/hit"
	"github.com/couchcryptid/station-globe/internal/observability"
	"github.com/couchcryptid/station-globe/internal/pipeline"
	"github.com/couchcryptid/station-globe/internal/placement"
	"github.com/couchcryptid/station-globe/internal/registry"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	// Mapbox when a token is configured, otherwise the geocode fixture.
	var geocoder domain.Geocoder
	if cfg.MapboxToken != "" {
		geocoder = mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "timeout", cfg.MapboxTimeout)
	} else {
		g, err := fixture.LoadGeocoder(cfg.GeocodeFixture)
		if err != nil {
			logger.Error("failed to load geocode fixture", "error", err)
			os.Exit(1)
		}
		geocoder = g
		logger.Info("fixture geocoding enabled", "path", cfg.GeocodeFixture)
	}

	var cacheOpts []geocache.Option
	if cfg.GeocodeCacheSize > 0 {
		cacheOpts = append(cacheOpts, geocache.WithCapacity(cfg.GeocodeCacheSize))
	}
	cache, err := geocache.New(geocoder, metrics, logger, cacheOpts...)
	if err != nil {
		logger.Error("failed to create geocode cache", "error", err)
		os.Exit(1)
	}

	reg := registry.New()
	clock := clockwork.NewRealClock()
	orch := placement.New(cache, reg, metrics, logger,
		placement.WithClock(clock),
		placement.WithConcurrency(cfg.PlacementConcurrency),
	)

	source := radiobrowser.NewClient(cfg.RadioBrowserURL, cfg.RadioBrowserTimeout, logger)

	var (
		loader pipeline.PlacementLoader
		writer *kafkaadapter.Writer
	)
	if cfg.PlacementSinkEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		loader = writer
	} else {
		logger.Info("placement sink disabled")
	}

	r := pipeline.New(source, orch, loader, reg, logger, metrics, clock, pipeline.SettingsFromConfig(cfg))

	srv := httpadapter.NewServer(cfg.HTTPAddr, r, hit.NewResolver(reg), logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start refresh loop.
	refreshDone := make(chan struct{})
	go func() {
		defer close(refreshDone)
		if err := r.Run(ctx); err != nil {
			logger.Error("refresh loop error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-refreshDone:
	case <-shutdownCtx.Done():
		logger.Warn("refresh loop did not stop before shutdown timeout")
	}
	orch.Close()
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
