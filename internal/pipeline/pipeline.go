// Package pipeline runs the periodic station refresh: fetch stations, place
// them on every render surface, and publish the placements.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/station-globe/internal/config"
	"github.com/couchcryptid/station-globe/internal/domain"
	"github.com/couchcryptid/station-globe/internal/observability"
	"github.com/couchcryptid/station-globe/internal/placement"
	sharedretry "github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jonboulle/clockwork"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// StationSource lists stations from the station data source.
type StationSource interface {
	TopStations(ctx context.Context, limit int) ([]domain.StationRecord, error)
	StationsByCountry(ctx context.Context, code string) ([]domain.StationRecord, error)
}

// Placer starts a placement batch on a render surface.
type Placer interface {
	Place(ctx context.Context, stations []domain.StationRecord, surfaceID string, radius float64) (*placement.Batch, error)
}

// PlacementLoader writes placements to the destination.
type PlacementLoader interface {
	LoadBatch(ctx context.Context, placements []domain.Placement) error
}

// StationCounter reports how many stations are resolvable by hit tests.
type StationCounter interface {
	Len() int
}

// Settings are the refresh parameters.
type Settings struct {
	Surfaces     []config.Surface
	StationLimit int
	CountryCodes []string
	Interval     time.Duration
	BatchSize    int
}

// SettingsFromConfig extracts the refresh parameters of cfg.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Surfaces:     cfg.Surfaces,
		StationLimit: cfg.StationLimit,
		CountryCodes: cfg.StationCountryCodes,
		Interval:     cfg.RefreshInterval,
		BatchSize:    cfg.BatchSize,
	}
}

// Refresher orchestrates the fetch-place-publish loop.
type Refresher struct {
	source   StationSource
	placer   Placer
	loader   PlacementLoader
	stations StationCounter
	logger   *slog.Logger
	metrics  *observability.Metrics
	clock    clockwork.Clock
	settings Settings
	ready    atomic.Bool
}

// New creates a Refresher. loader may be nil, in which case placements are
// counted but not published.
func New(source StationSource, placer Placer, loader PlacementLoader, stations StationCounter, logger *slog.Logger, metrics *observability.Metrics, clock clockwork.Clock, settings Settings) *Refresher {
	if settings.BatchSize <= 0 {
		settings.BatchSize = 1
	}
	return &Refresher{
		source:   source,
		placer:   placer,
		loader:   loader,
		stations: stations,
		logger:   logger,
		metrics:  metrics,
		clock:    clock,
		settings: settings,
	}
}

// CheckReadiness returns nil once a refresh has placed at least one station,
// or an error describing why the service is not yet ready.
func (r *Refresher) CheckReadiness(_ context.Context) error {
	if !r.ready.Load() {
		return errors.New("no stations have been placed yet")
	}
	return nil
}

// Run refreshes immediately and then on every interval tick until the
// context is cancelled. A failed refresh is retried with exponential backoff
// instead of waiting for the next tick.
func (r *Refresher) Run(ctx context.Context) error {
	r.logger.Info("refresh loop started",
		"interval", r.settings.Interval,
		"surfaces", len(r.settings.Surfaces),
		"batch_size", r.settings.BatchSize,
	)
	r.metrics.RefreshRunning.Set(1)
	defer r.metrics.RefreshRunning.Set(0)

	ticker := r.clock.NewTicker(r.settings.Interval)
	defer ticker.Stop()

	backoff := initialBackoff
	for {
		err := r.Refresh(ctx)
		if ctx.Err() != nil {
			r.logger.Info("refresh loop stopping", "reason", ctx.Err())
			return nil
		}
		if err != nil {
			r.logger.Error("refresh failed", "error", err, "retry_in", backoff)
			if !sharedretry.SleepWithContext(ctx, backoff) {
				return nil
			}
			backoff = sharedretry.NextBackoff(backoff, maxBackoff)
			continue
		}
		backoff = initialBackoff

		select {
		case <-ctx.Done():
			r.logger.Info("refresh loop stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
		}
	}
}

// Refresh runs one fetch-place-publish cycle. Stations already placed on a
// surface are skipped by the placer, so a refresh only publishes stations
// that are new or whose place could not be resolved before.
func (r *Refresher) Refresh(ctx context.Context) error {
	start := r.clock.Now()

	stations, err := r.fetch(ctx)
	if err != nil {
		r.metrics.Refreshes.WithLabelValues("source_error").Inc()
		return err
	}
	r.metrics.StationsFetched.Add(float64(len(stations)))

	batches := make([]*placement.Batch, 0, len(r.settings.Surfaces))
	for _, s := range r.settings.Surfaces {
		b, err := r.placer.Place(ctx, stations, s.ID, s.Radius)
		if err != nil {
			cancelAll(batches)
			return fmt.Errorf("place on %s: %w", s.ID, err)
		}
		batches = append(batches, b)
	}

	published := 0
	for i, b := range batches {
		n, ok := r.drain(ctx, b)
		published += n
		if !ok {
			cancelAll(batches[i+1:])
			return ctx.Err()
		}
		sum := b.Summary()
		r.logger.Info("surface refreshed",
			"surface", b.SurfaceID(),
			"placed", sum.Placed,
			"not_found", sum.NotFound,
			"invalid", sum.Invalid,
			"duplicate", sum.Duplicate,
		)
	}

	if r.stations != nil {
		r.metrics.RegistryStations.Set(float64(r.stations.Len()))
	}
	r.metrics.Refreshes.WithLabelValues("success").Inc()
	r.metrics.RefreshDuration.Observe(r.clock.Since(start).Seconds())
	if published > 0 {
		r.ready.Store(true)
	}
	return nil
}

func (r *Refresher) fetch(ctx context.Context) ([]domain.StationRecord, error) {
	if len(r.settings.CountryCodes) == 0 {
		stations, err := r.source.TopStations(ctx, r.settings.StationLimit)
		if err != nil {
			return nil, fmt.Errorf("fetch top stations: %w", err)
		}
		return stations, nil
	}

	var all []domain.StationRecord
	for _, code := range r.settings.CountryCodes {
		stations, err := r.source.StationsByCountry(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("fetch stations for %s: %w", code, err)
		}
		all = append(all, stations...)
	}
	return all, nil
}

// drain publishes the placements of b in chunks of BatchSize. Returns the
// number of placements delivered and false if the context was cancelled
// first.
func (r *Refresher) drain(ctx context.Context, b *placement.Batch) (int, bool) {
	published := 0
	buf := make([]domain.Placement, 0, r.settings.BatchSize)
	for p := range b.Placements() {
		buf = append(buf, p)
		if len(buf) < r.settings.BatchSize {
			continue
		}
		if !r.load(ctx, buf) {
			b.Cancel()
			return published, false
		}
		published += len(buf)
		buf = make([]domain.Placement, 0, r.settings.BatchSize)
	}
	if len(buf) > 0 {
		if !r.load(ctx, buf) {
			return published, false
		}
		published += len(buf)
	}
	return published, true
}

// load delivers placements, retrying with backoff until the sink accepts
// them. Placed stations are never re-emitted, so a chunk is not dropped on a
// transient sink failure. Returns false if the context was cancelled.
func (r *Refresher) load(ctx context.Context, placements []domain.Placement) bool {
	if r.loader == nil {
		return true
	}
	backoff := initialBackoff
	for {
		err := r.loader.LoadBatch(ctx, placements)
		if err == nil {
			r.metrics.PlacementsPublished.Add(float64(len(placements)))
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		r.metrics.SinkErrors.Inc()
		r.logger.Error("load placements failed", "error", err, "batch_size", len(placements))
		if !sharedretry.SleepWithContext(ctx, backoff) {
			return false
		}
		backoff = sharedretry.NextBackoff(backoff, maxBackoff)
	}
}

func cancelAll(batches []*placement.Batch) {
	for _, b := range batches {
		b.Cancel()
	}
}
