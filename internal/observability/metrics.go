package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "station_globe"

// Metrics holds the Prometheus counters, histograms, and gauges for the service.
type Metrics struct {
	// Refresh loop metrics.
	RefreshRunning  prometheus.Gauge
	Refreshes       *prometheus.CounterVec // labels: outcome={success,source_error}
	StationsFetched prometheus.Counter
	RefreshDuration prometheus.Histogram

	// Placement sink metrics.
	PlacementsPublished prometheus.Counter
	SinkErrors          prometheus.Counter

	// Placement metrics.
	Placements       *prometheus.CounterVec // labels: surface
	PlacementSkips   *prometheus.CounterVec // labels: surface, reason={invalid,not_found,duplicate,cancelled}
	RegistryStations prometheus.Gauge

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec // labels: outcome={success,not_found,error,cancelled}
	GeocodeCache       *prometheus.CounterVec // labels: result={hit,miss,join}
	GeocodeAPIDuration prometheus.Histogram
	GeocodeEnabled     prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		RefreshRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "refresh_running",
			Help:      "1 when the refresh loop is active, 0 when shut down.",
		}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "Station refresh cycles by outcome.",
		}, []string{"outcome"}),
		StationsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stations_fetched_total",
			Help:      "Total station records read from the station source.",
		}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Duration of a complete fetch-place-publish cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		PlacementsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "placements_published_total",
			Help:      "Placements delivered to the placement sink.",
		}),
		SinkErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Failed placement sink writes. Each failure is retried.",
		}),
		Placements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "placements_total",
			Help:      "Markers placed by render surface.",
		}, []string{"surface"}),
		PlacementSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "placement_skips_total",
			Help:      "Stations not placed, by render surface and reason.",
		}, []string{"surface", "reason"}),
		RegistryStations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registry_stations",
			Help:      "Stations currently resolvable by hit tests.",
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Geocoding collaborator calls by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocode cache lookups by result.",
		}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Mapbox API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "geocode_enabled",
			Help:      "1 when a geocoding service is configured, 0 otherwise.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RefreshRunning,
		m.Refreshes,
		m.StationsFetched,
		m.RefreshDuration,
		m.PlacementsPublished,
		m.SinkErrors,
		m.Placements,
		m.PlacementSkips,
		m.RegistryStations,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.GeocodeEnabled,
	}
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics registered on a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics()
	prometheus.NewRegistry().MustRegister(m.collectors()...)
	return m
}
