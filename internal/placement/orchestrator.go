// Package placement places stations as markers on render surfaces.
//
// For each station the orchestrator resolves the station's place through the
// geocode cache, projects the coordinate onto the surface's sphere, registers
// the station for hit testing and emits a domain.Placement. Every render
// surface keeps its own record of placed stations, so the preview globe and
// the full-screen globe never block each other.
package placement

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/couchcryptid/station-globe/internal/domain"
	"github.com/couchcryptid/station-globe/internal/observability"
	"github.com/couchcryptid/station-globe/internal/sphere"
	"github.com/jonboulle/clockwork"
)

// Resolver turns a place key into a coordinate.
type Resolver interface {
	Resolve(ctx context.Context, key domain.PlaceKey) (domain.GeoCoordinate, error)
}

// Registrar records placed stations for hit testing.
type Registrar interface {
	Register(rec domain.StationRecord) error
}

const defaultConcurrency = 16

// Orchestrator drives placement batches. It is safe for concurrent use.
type Orchestrator struct {
	resolver    Resolver
	registry    Registrar
	metrics     *observability.Metrics
	logger      *slog.Logger
	clock       clockwork.Clock
	concurrency int

	mu       sync.Mutex
	surfaces map[string]*surface
}

// surface is the dedup state of one render surface. Guarded by Orchestrator.mu.
type surface struct {
	id      string
	placed  map[string]struct{}
	batches map[*Batch]struct{}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock sets the time source used to stamp placements.
func WithClock(c clockwork.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithConcurrency bounds how many stations of one batch are processed at
// once. Values below one are ignored.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// New creates an Orchestrator over an explicit resolver and registry.
func New(resolver Resolver, registry Registrar, metrics *observability.Metrics, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		resolver:    resolver,
		registry:    registry,
		metrics:     metrics,
		logger:      logger,
		clock:       clockwork.NewRealClock(),
		concurrency: defaultConcurrency,
		surfaces:    make(map[string]*surface),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Place starts placing stations on the surface identified by surfaceID, a
// sphere of the given radius. It returns immediately; placements arrive on
// the batch's channel in completion order.
//
// Stations already placed or being placed on surfaceID are skipped, as are
// stations whose place cannot be resolved. Cancelling ctx, the batch, or the
// surface stops outstanding work without affecting the geocode cache.
func (o *Orchestrator) Place(ctx context.Context, stations []domain.StationRecord, surfaceID string, radius float64) (*Batch, error) {
	if surfaceID == "" {
		return nil, fmt.Errorf("empty surface id: %w", domain.ErrInvalidInput)
	}
	if !(radius > 0) || math.IsInf(radius, 0) {
		return nil, fmt.Errorf("radius %v: %w", radius, domain.ErrInvalidInput)
	}

	ctx, cancel := context.WithCancel(ctx)
	b := &Batch{
		surfaceID: surfaceID,
		out:       make(chan domain.Placement, len(stations)),
		done:      make(chan struct{}),
		cancel:    cancel,
	}

	o.mu.Lock()
	s := o.surfaceLocked(surfaceID)
	s.batches[b] = struct{}{}
	o.mu.Unlock()

	go o.run(ctx, s, b, stations, radius)
	return b, nil
}

// CloseSurface cancels every outstanding batch of surfaceID and forgets which
// stations it holds. A surface created later under the same id starts empty.
func (o *Orchestrator) CloseSurface(surfaceID string) {
	o.mu.Lock()
	s, ok := o.surfaces[surfaceID]
	delete(o.surfaces, surfaceID)
	o.mu.Unlock()

	if !ok {
		return
	}
	o.cancelBatches(s)
	o.logger.Debug("surface closed", "surface", surfaceID)
}

// Close tears down every surface.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	surfaces := o.surfaces
	o.surfaces = make(map[string]*surface)
	o.mu.Unlock()

	for _, s := range surfaces {
		o.cancelBatches(s)
	}
}

// PlacedCount returns how many stations are placed on surfaceID.
func (o *Orchestrator) PlacedCount(surfaceID string) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	s, ok := o.surfaces[surfaceID]
	if !ok {
		return 0
	}
	return len(s.placed)
}

func (o *Orchestrator) cancelBatches(s *surface) {
	o.mu.Lock()
	batches := make([]*Batch, 0, len(s.batches))
	for b := range s.batches {
		batches = append(batches, b)
	}
	o.mu.Unlock()

	for _, b := range batches {
		b.Cancel()
	}
}

func (o *Orchestrator) surfaceLocked(id string) *surface {
	s, ok := o.surfaces[id]
	if !ok {
		s = &surface{
			id:      id,
			placed:  make(map[string]struct{}),
			batches: make(map[*Batch]struct{}),
		}
		o.surfaces[id] = s
	}
	return s
}

func (o *Orchestrator) run(ctx context.Context, s *surface, b *Batch, stations []domain.StationRecord, radius float64) {
	sem := make(chan struct{}, o.concurrency)
	var wg sync.WaitGroup

	for _, st := range stations {
		wg.Add(1)
		go func() {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				b.record(skipCancelled)
				o.metrics.PlacementSkips.WithLabelValues(s.id, string(skipCancelled)).Inc()
				return
			}

			reason := o.placeOne(ctx, s, b, st, radius)
			b.record(reason)
			if reason == placed {
				o.metrics.Placements.WithLabelValues(s.id).Inc()
			} else {
				o.metrics.PlacementSkips.WithLabelValues(s.id, string(reason)).Inc()
			}
		}()
	}
	wg.Wait()

	o.mu.Lock()
	delete(s.batches, b)
	o.mu.Unlock()

	b.cancel()
	close(b.out)
	close(b.done)

	sum := b.Summary()
	o.logger.Debug("placement batch finished",
		"surface", s.id,
		"placed", sum.Placed,
		"not_found", sum.NotFound,
		"invalid", sum.Invalid,
		"duplicate", sum.Duplicate,
		"cancelled", sum.Cancelled,
	)
}

// placeOne runs the placement pipeline for a single station.
func (o *Orchestrator) placeOne(ctx context.Context, s *surface, b *Batch, st domain.StationRecord, radius float64) outcome {
	if err := st.Validate(); err != nil {
		o.logger.Warn("skipping malformed station", "surface", s.id, "error", err)
		return skipInvalid
	}
	if o.isPlaced(s, st.ID) {
		return skipDuplicate
	}

	coord, err := o.resolver.Resolve(ctx, st.Key())
	if err != nil {
		if ctx.Err() != nil {
			return skipCancelled
		}
		o.logger.Debug("station place not resolved",
			"station_id", st.ID,
			"surface", s.id,
			"country", st.Country,
			"state", st.State,
			"error", err,
		)
		return skipNotFound
	}

	point, err := sphere.Forward(coord, radius)
	if err != nil {
		o.logger.Warn("projection failed", "station_id", st.ID, "surface", s.id, "error", err)
		return skipInvalid
	}

	p := domain.Placement{
		StationID:  st.ID,
		SurfaceID:  s.id,
		Point:      point,
		Coordinate: coord,
		PlacedAt:   o.clock.Now(),
	}
	res, err := o.emit(ctx, s, b, st, p)
	if err != nil {
		o.logger.Warn("station registration failed", "station_id", st.ID, "error", err)
	}
	return res
}

// isPlaced is a fast path that skips resolving stations already on s.
// Concurrent batches may still resolve the same station; emit settles who
// places it.
func (o *Orchestrator) isPlaced(s *surface, id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	_, ok := s.placed[id]
	return ok
}

// emit registers the station, marks it placed and hands p to the batch in
// one critical section, so a cancelled batch leaves no trace on s or in the
// registry. The channel is sized for the whole batch, so the send never
// blocks.
func (o *Orchestrator) emit(ctx context.Context, s *surface, b *Batch, st domain.StationRecord, p domain.Placement) (outcome, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if ctx.Err() != nil {
		return skipCancelled, nil
	}
	if _, ok := s.placed[p.StationID]; ok {
		return skipDuplicate, nil
	}
	if err := o.registry.Register(st); err != nil {
		return skipInvalid, err
	}
	s.placed[p.StationID] = struct{}{}
	b.out <- p
	return placed, nil
}
