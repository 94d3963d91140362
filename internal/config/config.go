package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// DefaultSurfaces mirrors the two globes of the player: the small preview
// globe and the full-screen one.
const DefaultSurfaces = "preview:0.81,fullscreen:1.01"

// Surface is a render surface markers are placed on.
type Surface struct {
	ID     string
	Radius float64
}

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Placement sink.
	KafkaBrokers         []string
	KafkaPlacementTopic  string
	PlacementSinkEnabled bool
	BatchSize            int

	// Geocoding. A Mapbox token takes precedence over a fixture file.
	MapboxToken      string
	MapboxTimeout    time.Duration
	GeocodeFixture   string
	GeocodeCacheSize int

	// Station source.
	RadioBrowserURL     string
	RadioBrowserTimeout time.Duration
	StationLimit        int
	StationCountryCodes []string
	RefreshInterval     time.Duration

	PlacementConcurrency int
	Surfaces             []Surface
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	mapboxTimeout, err := parsePositiveDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	radioTimeout, err := parsePositiveDuration("RADIO_BROWSER_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	refreshInterval, err := parsePositiveDuration("REFRESH_INTERVAL", "15m")
	if err != nil {
		return nil, err
	}

	cacheSize, err := parseInt("GEOCODE_CACHE_SIZE", "0", 0, math.MaxInt32)
	if err != nil {
		return nil, err
	}
	stationLimit, err := parseInt("STATION_LIMIT", "50", 1, 100000)
	if err != nil {
		return nil, err
	}
	concurrency, err := parseInt("PLACEMENT_CONCURRENCY", "16", 1, 1024)
	if err != nil {
		return nil, err
	}

	sinkEnabled, err := strconv.ParseBool(sharedcfg.EnvOrDefault("PLACEMENT_SINK_ENABLED", "true"))
	if err != nil {
		return nil, errors.New("invalid PLACEMENT_SINK_ENABLED: must be a boolean")
	}

	surfaces, err := ParseSurfaces(sharedcfg.EnvOrDefault("SURFACES", DefaultSurfaces))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		KafkaBrokers:         sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaPlacementTopic:  sharedcfg.EnvOrDefault("KAFKA_PLACEMENT_TOPIC", "station-placements"),
		PlacementSinkEnabled: sinkEnabled,
		BatchSize:            batchSize,

		MapboxToken:      os.Getenv("MAPBOX_TOKEN"),
		MapboxTimeout:    mapboxTimeout,
		GeocodeFixture:   os.Getenv("GEOCODE_FIXTURE"),
		GeocodeCacheSize: cacheSize,

		RadioBrowserURL:     sharedcfg.EnvOrDefault("RADIO_BROWSER_URL", "https://de2.api.radio-browser.info"),
		RadioBrowserTimeout: radioTimeout,
		StationLimit:        stationLimit,
		StationCountryCodes: parseCountryCodes(os.Getenv("STATION_COUNTRY_CODES")),
		RefreshInterval:     refreshInterval,

		PlacementConcurrency: concurrency,
		Surfaces:             surfaces,
	}

	if cfg.PlacementSinkEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaPlacementTopic == "" {
			return nil, errors.New("KAFKA_PLACEMENT_TOPIC is required")
		}
	}
	if cfg.MapboxToken == "" && cfg.GeocodeFixture == "" {
		return nil, errors.New("one of MAPBOX_TOKEN or GEOCODE_FIXTURE is required")
	}

	return cfg, nil
}

// ParseSurfaces parses a comma-separated list of id:radius pairs.
func ParseSurfaces(value string) ([]Surface, error) {
	var surfaces []Surface
	seen := make(map[string]bool)
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, radiusStr, ok := strings.Cut(part, ":")
		id = strings.TrimSpace(id)
		if !ok || id == "" {
			return nil, fmt.Errorf("invalid SURFACES entry %q: want id:radius", part)
		}
		radius, err := strconv.ParseFloat(strings.TrimSpace(radiusStr), 64)
		if err != nil || radius <= 0 || math.IsInf(radius, 0) || math.IsNaN(radius) {
			return nil, fmt.Errorf("invalid SURFACES entry %q: radius must be a positive number", part)
		}
		if seen[id] {
			return nil, fmt.Errorf("invalid SURFACES: duplicate surface %q", id)
		}
		seen[id] = true
		surfaces = append(surfaces, Surface{ID: id, Radius: radius})
	}
	if len(surfaces) == 0 {
		return nil, errors.New("SURFACES must name at least one surface")
	}
	return surfaces, nil
}

func parseCountryCodes(value string) []string {
	var codes []string
	for _, code := range sharedcfg.ParseBrokers(value) {
		codes = append(codes, strings.ToUpper(code))
	}
	return codes
}

func parsePositiveDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parseInt(key, fallback string, lo, hi int) (int, error) {
	n, err := strconv.Atoi(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s: must be %d-%d", key, lo, hi)
	}
	return n, nil
}
