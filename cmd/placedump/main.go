// Command placedump places a station fixture on every configured surface
// using a geocode fixture instead of a live geocoding service, and writes the
// resulting placements as JSON. It runs the same cache and orchestrator the
// service uses, so the output matches what the refresh loop publishes.
//
// Usage:
//
//	go run ./cmd/placedump \
//	  -stations data/fixtures/stations.json \
//	  -geocode data/fixtures/geocode.json \
//	  -out data/fixtures/placements.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/couchcryptid/station-globe/internal/adapter/fixture"
	"github.com/couchcryptid/station-globe/internal/config"
	"github.com/couchcryptid/station-globe/internal/domain"
	"github.com/couchcryptid/station-globe/internal/geocache"
	"github.com/couchcryptid/station-globe/internal/observability"
	"github.com/couchcryptid/station-globe/internal/placement"
	"github.com/couchcryptid/station-globe/internal/registry"
	"github.com/jonboulle/clockwork"
)

// placedAt is stamped on every placement for reproducible output.
var placedAt = time.Date(2025, time.June, 8, 0, 0, 0, 0, time.UTC)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	stationsPath := flag.String("stations", "", "path to a JSON array of station records")
	geocodePath := flag.String("geocode", "", "path to a JSON object of address → coordinate")
	surfaces := flag.String("surfaces", config.DefaultSurfaces, "comma-separated id:radius render surfaces")
	out := flag.String("out", "", "output path for the placements JSON")
	flag.Parse()

	if *stationsPath == "" || *geocodePath == "" || *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -stations, -geocode, -out")
	}

	surfs, err := config.ParseSurfaces(*surfaces)
	if err != nil {
		return err
	}
	stations, err := fixture.LoadStations(*stationsPath)
	if err != nil {
		return err
	}
	geocoder, err := fixture.LoadGeocoder(*geocodePath)
	if err != nil {
		return err
	}

	res, err := place(context.Background(), stations, geocoder, surfs)
	if err != nil {
		return err
	}
	log.Printf("stations: %d, surfaces: %d, placements: %d", len(stations), len(surfs), len(res.placements))

	if err := writeJSON(*out, res.placements); err != nil {
		return fmt.Errorf("writing placements: %w", err)
	}
	log.Printf("wrote placements: %s", *out)

	printStats(res)
	return nil
}

type result struct {
	placements []domain.Placement
	summaries  map[string]placement.Summary
	unresolved []domain.PlaceKey
	cache      geocache.Stats
}

func place(ctx context.Context, stations []domain.StationRecord, geocoder domain.Geocoder, surfaces []config.Surface) (result, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()

	cache, err := geocache.New(geocoder, metrics, logger)
	if err != nil {
		return result{}, err
	}
	orch := placement.New(cache, registry.New(), metrics, logger,
		placement.WithClock(clockwork.NewFakeClockAt(placedAt)))
	defer orch.Close()

	res := result{summaries: make(map[string]placement.Summary, len(surfaces))}
	for _, s := range surfaces {
		b, err := orch.Place(ctx, stations, s.ID, s.Radius)
		if err != nil {
			return result{}, fmt.Errorf("place on %s: %w", s.ID, err)
		}
		res.placements = append(res.placements, placement.Collect(b)...)
		res.summaries[s.ID] = b.Wait()
	}

	// Completion order is not stable across runs.
	sort.Slice(res.placements, func(i, j int) bool {
		a, b := res.placements[i], res.placements[j]
		if a.SurfaceID != b.SurfaceID {
			return a.SurfaceID < b.SurfaceID
		}
		return a.StationID < b.StationID
	})

	res.cache = cache.Stats()

	seen := map[domain.PlaceKey]bool{}
	for _, st := range stations {
		k := st.Key()
		if seen[k] || st.Validate() != nil {
			continue
		}
		seen[k] = true
		if _, err := cache.Resolve(ctx, k); err != nil {
			res.unresolved = append(res.unresolved, k)
		}
	}
	sort.Slice(res.unresolved, func(i, j int) bool { return res.unresolved[i].String() < res.unresolved[j].String() })
	return res, nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

func printStats(res result) {
	fmt.Println("\n=== Placement stats ===")

	ids := make([]string, 0, len(res.summaries))
	for id := range res.summaries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		s := res.summaries[id]
		fmt.Printf("%-12s placed=%d not_found=%d invalid=%d duplicate=%d\n",
			id, s.Placed, s.NotFound, s.Invalid, s.Duplicate)
	}

	fmt.Printf("Geocode cache: hits=%d misses=%d joins=%d failures=%d\n",
		res.cache.Hits, res.cache.Misses, res.cache.Joins, res.cache.Failures)

	if len(res.unresolved) == 0 {
		return
	}
	fmt.Printf("\nUnresolved places (%d), add these addresses to the geocode fixture:\n", len(res.unresolved))
	for _, k := range res.unresolved {
		fmt.Printf("  %q\n", k.Address())
	}
}
