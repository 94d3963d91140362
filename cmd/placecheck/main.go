// Command placecheck performs integrity checks on a placements dump produced
// by placedump or captured from the placement topic. It verifies that every
// placement refers to a known station and surface, that no station is placed
// twice on a surface, and that every point projects back onto its coordinate.
//
// Usage:
//
//	go run ./cmd/placecheck \
//	  -placements data/fixtures/placements.json \
//	  -stations data/fixtures/stations.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/couchcryptid/station-globe/internal/adapter/fixture"
	"github.com/couchcryptid/station-globe/internal/config"
	"github.com/couchcryptid/station-globe/internal/domain"
	"github.com/couchcryptid/station-globe/internal/sphere"
)

// Projection tolerances: radius in surface units, coordinates in degrees.
const (
	radiusTolerance = 1e-9
	degreeTolerance = 1e-6
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	placementsPath := flag.String("placements", "", "path to a placements JSON array")
	stationsPath := flag.String("stations", "", "path to the station records the placements were made from")
	surfaces := flag.String("surfaces", config.DefaultSurfaces, "comma-separated id:radius render surfaces")
	flag.Parse()

	if *placementsPath == "" || *stationsPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*placementsPath, *stationsPath, *surfaces); code != 0 {
		os.Exit(code)
	}
}

func run(placementsPath, stationsPath, surfaceList string) int {
	fmt.Println("=== Placement Integrity Validation ===")
	fmt.Println()

	surfaces, err := config.ParseSurfaces(surfaceList)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}
	stations, err := fixture.LoadStations(stationsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load stations: %v\n", err)
		return 1
	}
	placements, err := loadPlacements(placementsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load placements: %v\n", err)
		return 1
	}

	phases := validate(placements, stations, surfaces)

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d placements, %d stations, %d surfaces\n",
		len(placements), len(stations), len(surfaces))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func loadPlacements(path string) ([]domain.Placement, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var items []domain.Placement
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func validate(placements []domain.Placement, stations []domain.StationRecord, surfaces []config.Surface) []*phase {
	return []*phase{
		validateReferences(placements, stations, surfaces),
		validateMembership(placements),
		validateProjection(placements, surfaces),
	}
}

// ── Phase 1: References ──
// Every placement names a known station and a configured surface.

func validateReferences(placements []domain.Placement, stations []domain.StationRecord, surfaces []config.Surface) *phase {
	p := &phase{name: "Phase 1: Station and surface references"}

	known := make(map[string]bool, len(stations))
	for _, st := range stations {
		known[st.ID] = true
	}
	surfs := make(map[string]bool, len(surfaces))
	for _, s := range surfaces {
		surfs[s.ID] = true
	}

	for i, pl := range placements {
		if !known[pl.StationID] {
			p.errorf("placement %d: unknown station %q", i, pl.StationID)
		}
		if !surfs[pl.SurfaceID] {
			p.errorf("placement %d: unknown surface %q", i, pl.SurfaceID)
		}
		if pl.PlacedAt.IsZero() {
			p.errorf("placement %d: missing placed_at", i)
		}
	}
	return p
}

// ── Phase 2: Membership ──
// A station is placed at most once per surface.

func validateMembership(placements []domain.Placement) *phase {
	p := &phase{name: "Phase 2: One marker per station and surface"}

	type member struct{ surface, station string }
	first := make(map[member]int, len(placements))
	for i, pl := range placements {
		m := member{pl.SurfaceID, pl.StationID}
		if j, ok := first[m]; ok {
			p.errorf("placement %d: station %q already placed on %q by placement %d", i, pl.StationID, pl.SurfaceID, j)
			continue
		}
		first[m] = i
	}
	return p
}

// ── Phase 3: Projection ──
// Points lie on their surface's sphere and project back to their coordinate.

func validateProjection(placements []domain.Placement, surfaces []config.Surface) *phase {
	p := &phase{name: "Phase 3: Projection consistency"}

	radii := make(map[string]float64, len(surfaces))
	for _, s := range surfaces {
		radii[s.ID] = s.Radius
	}

	for i, pl := range placements {
		if r, ok := radii[pl.SurfaceID]; ok {
			got := math.Sqrt(pl.Point.X*pl.Point.X + pl.Point.Y*pl.Point.Y + pl.Point.Z*pl.Point.Z)
			if math.Abs(got-r) > radiusTolerance {
				p.errorf("placement %d: |point| = %g, want surface radius %g", i, got, r)
			}
		}

		c, err := sphere.Inverse(pl.Point)
		if err != nil {
			p.errorf("placement %d: %v", i, err)
			continue
		}
		if math.Abs(c.Latitude-pl.Coordinate.Latitude) > degreeTolerance {
			p.errorf("placement %d: latitude %g projects back to %g", i, pl.Coordinate.Latitude, c.Latitude)
		}
		// Longitude is meaningless at the poles.
		if math.Abs(pl.Coordinate.Latitude) < 90-degreeTolerance && lonDiff(c.Longitude, pl.Coordinate.Longitude) > degreeTolerance {
			p.errorf("placement %d: longitude %g projects back to %g", i, pl.Coordinate.Longitude, c.Longitude)
		}
	}
	return p
}

func lonDiff(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	return math.Min(d, 360-d)
}
