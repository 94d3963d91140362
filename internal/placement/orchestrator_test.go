package placement

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/station-globe/internal/domain"
	"github.com/couchcryptid/station-globe/internal/observability"
	"github.com/couchcryptid/station-globe/internal/registry"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	previewRadius    = 0.81
	fullscreenRadius = 1.01
)

var (
	ukKey      = domain.PlaceKey{Country: "United Kingdom"}
	franceKey  = domain.PlaceKey{Country: "France"}
	jaliscoKey = domain.PlaceKey{Country: "Mexico", State: "Jalisco"}
)

// --- fakes ---

type fakeResolver struct {
	mu     sync.Mutex
	coords map[domain.PlaceKey]domain.GeoCoordinate
	calls  map[domain.PlaceKey]int

	// gate, when set, holds every Resolve until closed or cancelled.
	gate chan struct{}
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		coords: map[domain.PlaceKey]domain.GeoCoordinate{
			ukKey:      {Latitude: 51.5074, Longitude: -0.1278},
			franceKey:  {Latitude: 46.2276, Longitude: 2.2137},
			jaliscoKey: {Latitude: 20.6597, Longitude: -103.3496},
		},
		calls: make(map[domain.PlaceKey]int),
	}
}

func (f *fakeResolver) Resolve(ctx context.Context, key domain.PlaceKey) (domain.GeoCoordinate, error) {
	f.mu.Lock()
	f.calls[key]++
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.GeoCoordinate{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.coords[key]
	if !ok {
		return domain.GeoCoordinate{}, domain.ErrGeocodeNotFound
	}
	return c, nil
}

func (f *fakeResolver) set(key domain.PlaceKey, c domain.GeoCoordinate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.coords[key] = c
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestOrchestrator(res Resolver, opts ...Option) (*Orchestrator, *registry.Registry, *observability.Metrics) {
	reg := registry.New()
	metrics := observability.NewMetricsForTesting()
	return New(res, reg, metrics, discardLogger(), opts...), reg, metrics
}

func testStations() []domain.StationRecord {
	return []domain.StationRecord{
		{ID: "s1", Name: "BBC Radio 1", Country: "United Kingdom"},
		{ID: "s2", Name: "FIP", Country: "France"},
		{ID: "s3", Name: "Radio Mexicana", Country: "Mexico", State: "Jalisco"},
	}
}

func byStation(ps []domain.Placement) map[string]domain.Placement {
	m := make(map[string]domain.Placement, len(ps))
	for _, p := range ps {
		m[p.StationID] = p
	}
	return m
}

func magnitude(p domain.SpherePoint) float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
}

// --- tests ---

func TestPlace_EmitsOnePlacementPerResolvableStation(t *testing.T) {
	o, reg, metrics := newTestOrchestrator(newFakeResolver())
	stations := append(testStations(), domain.StationRecord{ID: "s4", Name: "Lost", Country: "Atlantis"})

	b, err := o.Place(context.Background(), stations, "preview", previewRadius)
	require.NoError(t, err)

	got := byStation(Collect(b))
	sum := b.Wait()

	assert.Len(t, got, 3)
	assert.NotContains(t, got, "s4")
	assert.Equal(t, Summary{Placed: 3, NotFound: 1}, sum)
	assert.Equal(t, 3, o.PlacedCount("preview"))
	assert.Equal(t, 3, reg.Len(), "only placed stations are registered")
	assert.InDelta(t, 3.0, testutil.ToFloat64(metrics.Placements.WithLabelValues("preview")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.PlacementSkips.WithLabelValues("preview", "not_found")), 0)

	for id, p := range got {
		assert.Equal(t, "preview", p.SurfaceID, id)
		assert.InDelta(t, previewRadius, magnitude(p.Point), 1e-9, id)
	}
}

func TestPlace_SkipsStationsAlreadyPlaced(t *testing.T) {
	o, _, _ := newTestOrchestrator(newFakeResolver())

	b1, err := o.Place(context.Background(), testStations(), "preview", previewRadius)
	require.NoError(t, err)
	assert.Len(t, Collect(b1), 3)

	b2, err := o.Place(context.Background(), testStations(), "preview", previewRadius)
	require.NoError(t, err)
	assert.Empty(t, Collect(b2))
	assert.Equal(t, Summary{Duplicate: 3}, b2.Wait())
}

func TestPlace_SurfacesAreIndependent(t *testing.T) {
	o, _, _ := newTestOrchestrator(newFakeResolver())
	station := testStations()[:1]

	a, err := o.Place(context.Background(), station, "A", previewRadius)
	require.NoError(t, err)
	pa := Collect(a)

	b, err := o.Place(context.Background(), station, "B", fullscreenRadius)
	require.NoError(t, err)
	pb := Collect(b)

	require.Len(t, pa, 1)
	require.Len(t, pb, 1)
	assert.Equal(t, "A", pa[0].SurfaceID)
	assert.Equal(t, "B", pb[0].SurfaceID)
	assert.InDelta(t, previewRadius, magnitude(pa[0].Point), 1e-9)
	assert.InDelta(t, fullscreenRadius, magnitude(pb[0].Point), 1e-9)
	assert.Equal(t, pa[0].Coordinate, pb[0].Coordinate)
}

func TestPlace_ConcurrentBatchesPlaceEachStationOnce(t *testing.T) {
	res := newFakeResolver()
	res.gate = make(chan struct{})
	o, _, _ := newTestOrchestrator(res)

	b1, err := o.Place(context.Background(), testStations(), "preview", previewRadius)
	require.NoError(t, err)
	b2, err := o.Place(context.Background(), testStations(), "preview", previewRadius)
	require.NoError(t, err)

	close(res.gate)

	placements := append(Collect(b1), Collect(b2)...)
	s1, s2 := b1.Wait(), b2.Wait()

	assert.Len(t, placements, 3)
	assert.Len(t, byStation(placements), 3, "no station placed twice")
	assert.Equal(t, 3, s1.Placed+s2.Placed)
	assert.Equal(t, 3, s1.Duplicate+s2.Duplicate)
}

func TestPlace_CancelledBatchDoesNotStarveAnother(t *testing.T) {
	res := newFakeResolver()
	res.gate = make(chan struct{})
	o, reg, _ := newTestOrchestrator(res)

	a, err := o.Place(context.Background(), testStations(), "fullscreen", fullscreenRadius)
	require.NoError(t, err)
	b, err := o.Place(context.Background(), testStations(), "fullscreen", fullscreenRadius)
	require.NoError(t, err)

	// Both batches are parked in Resolve for every station.
	require.Eventually(t, func() bool {
		res.mu.Lock()
		defer res.mu.Unlock()
		return res.calls[ukKey] == 2 && res.calls[franceKey] == 2 && res.calls[jaliscoKey] == 2
	}, 2*time.Second, 5*time.Millisecond)

	a.Cancel()
	assert.Equal(t, Summary{Cancelled: 3}, a.Wait())

	close(res.gate)
	assert.Len(t, Collect(b), 3)
	assert.Equal(t, Summary{Placed: 3}, b.Wait())
	assert.Equal(t, 3, o.PlacedCount("fullscreen"))
	assert.Equal(t, 3, reg.Len())
}

// blindResolver resolves once released, ignoring ctx.
type blindResolver struct {
	started chan struct{}
	release chan struct{}
}

func (r *blindResolver) Resolve(_ context.Context, _ domain.PlaceKey) (domain.GeoCoordinate, error) {
	r.started <- struct{}{}
	<-r.release
	return domain.GeoCoordinate{Latitude: 51.5074, Longitude: -0.1278}, nil
}

func TestPlace_CancelledAfterResolveIsNotRegistered(t *testing.T) {
	res := &blindResolver{started: make(chan struct{}, 1), release: make(chan struct{})}
	o, reg, _ := newTestOrchestrator(res)

	b, err := o.Place(context.Background(), testStations()[:1], "preview", previewRadius)
	require.NoError(t, err)

	<-res.started
	b.Cancel()
	close(res.release)

	assert.Empty(t, Collect(b))
	assert.Equal(t, Summary{Cancelled: 1}, b.Wait())
	assert.Zero(t, reg.Len())
	assert.Zero(t, o.PlacedCount("preview"))
}

func TestPlace_DuplicateIDsWithinBatch(t *testing.T) {
	o, _, _ := newTestOrchestrator(newFakeResolver())
	stations := []domain.StationRecord{
		{ID: "s1", Name: "BBC Radio 1", Country: "United Kingdom"},
		{ID: "s1", Name: "BBC Radio 1", Country: "United Kingdom"},
	}

	b, err := o.Place(context.Background(), stations, "preview", previewRadius)
	require.NoError(t, err)
	assert.Len(t, Collect(b), 1)
	assert.Equal(t, Summary{Placed: 1, Duplicate: 1}, b.Wait())
}

func TestPlace_MalformedStationDoesNotAbortBatch(t *testing.T) {
	o, _, _ := newTestOrchestrator(newFakeResolver())
	stations := append(testStations(),
		domain.StationRecord{ID: "", Name: "no id", Country: "France"},
		domain.StationRecord{ID: "s9", Name: "no country"},
	)

	b, err := o.Place(context.Background(), stations, "preview", previewRadius)
	require.NoError(t, err)

	assert.Len(t, Collect(b), 3)
	assert.Equal(t, Summary{Placed: 3, Invalid: 2}, b.Wait())
}

func TestPlace_NotFoundIsRetriedLater(t *testing.T) {
	res := newFakeResolver()
	o, _, _ := newTestOrchestrator(res)
	chile := domain.StationRecord{ID: "cl1", Name: "Radio Cooperativa", Country: "Chile"}

	b, err := o.Place(context.Background(), []domain.StationRecord{chile}, "preview", previewRadius)
	require.NoError(t, err)
	assert.Empty(t, Collect(b))

	res.set(domain.PlaceKey{Country: "Chile"}, domain.GeoCoordinate{Latitude: -35.6751, Longitude: -71.543})

	b, err = o.Place(context.Background(), []domain.StationRecord{chile}, "preview", previewRadius)
	require.NoError(t, err)
	assert.Len(t, Collect(b), 1)
}

func TestPlace_RejectsBadArguments(t *testing.T) {
	o, _, _ := newTestOrchestrator(newFakeResolver())

	_, err := o.Place(context.Background(), testStations(), "", previewRadius)
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	for _, r := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err = o.Place(context.Background(), testStations(), "preview", r)
		require.ErrorIs(t, err, domain.ErrInvalidInput, "radius %v", r)
	}
}

func TestPlace_EmptyBatch(t *testing.T) {
	o, _, _ := newTestOrchestrator(newFakeResolver())

	b, err := o.Place(context.Background(), nil, "preview", previewRadius)
	require.NoError(t, err)
	assert.Empty(t, Collect(b))
	assert.Zero(t, b.Wait().Total())
}

func TestPlace_StampsPlacementsWithClock(t *testing.T) {
	at := time.Date(2025, time.June, 8, 12, 0, 0, 0, time.UTC)
	o, _, _ := newTestOrchestrator(newFakeResolver(), WithClock(clockwork.NewFakeClockAt(at)))

	b, err := o.Place(context.Background(), testStations()[:1], "preview", previewRadius)
	require.NoError(t, err)

	ps := Collect(b)
	require.Len(t, ps, 1)
	assert.Equal(t, at, ps[0].PlacedAt)
}

func TestPlace_ConcurrencyLimit(t *testing.T) {
	res := newFakeResolver()
	res.gate = make(chan struct{})
	o, _, _ := newTestOrchestrator(res, WithConcurrency(1))

	b, err := o.Place(context.Background(), testStations(), "preview", previewRadius)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		res.mu.Lock()
		defer res.mu.Unlock()
		return len(res.calls) == 1
	}, 2*time.Second, 5*time.Millisecond)

	// With one slot the other stations cannot have reached the resolver.
	time.Sleep(20 * time.Millisecond)
	res.mu.Lock()
	inFlight := len(res.calls)
	res.mu.Unlock()
	assert.Equal(t, 1, inFlight)

	close(res.gate)
	assert.Len(t, Collect(b), 3)
}

func TestCloseSurface_CancelsOutstandingWork(t *testing.T) {
	res := newFakeResolver()
	res.gate = make(chan struct{})
	o, reg, _ := newTestOrchestrator(res)

	b, err := o.Place(context.Background(), testStations(), "fullscreen", fullscreenRadius)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		res.mu.Lock()
		defer res.mu.Unlock()
		return len(res.calls) == 3
	}, 2*time.Second, 5*time.Millisecond)

	o.CloseSurface("fullscreen")

	select {
	case <-b.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("batch did not finish after surface close")
	}
	assert.Empty(t, Collect(b))
	assert.Equal(t, Summary{Cancelled: 3}, b.Wait())
	assert.Zero(t, reg.Len())
	assert.Zero(t, o.PlacedCount("fullscreen"))

	// A re-created surface starts over.
	close(res.gate)
	b, err = o.Place(context.Background(), testStations(), "fullscreen", fullscreenRadius)
	require.NoError(t, err)
	assert.Len(t, Collect(b), 3)
}

func TestCloseSurface_LeavesOtherSurfacesAlone(t *testing.T) {
	o, _, _ := newTestOrchestrator(newFakeResolver())

	b, err := o.Place(context.Background(), testStations(), "preview", previewRadius)
	require.NoError(t, err)
	Collect(b)

	o.CloseSurface("fullscreen")
	assert.Equal(t, 3, o.PlacedCount("preview"))

	o.Close()
	assert.Zero(t, o.PlacedCount("preview"))
}

func TestBatch_CancelKeepsEmittedPlacements(t *testing.T) {
	res := newFakeResolver()
	o, _, _ := newTestOrchestrator(res)

	b, err := o.Place(context.Background(), testStations()[:1], "preview", previewRadius)
	require.NoError(t, err)
	require.Len(t, Collect(b), 1)

	b.Cancel()
	assert.Equal(t, 1, o.PlacedCount("preview"))
}

func TestPlace_ParentContextCancelled(t *testing.T) {
	o, _, _ := newTestOrchestrator(newFakeResolver())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b, err := o.Place(ctx, testStations(), "preview", previewRadius)
	require.NoError(t, err)
	assert.Empty(t, Collect(b))
	assert.Equal(t, 3, b.Wait().Cancelled)
	assert.Zero(t, o.PlacedCount("preview"))
}
