// Package hit resolves taps on a render surface to a station or a place on
// the globe.
package hit

import (
	"errors"
	"fmt"

	"github.com/couchcryptid/station-globe/internal/domain"
	"github.com/couchcryptid/station-globe/internal/sphere"
)

// StationLookup finds registered stations by id.
type StationLookup interface {
	Lookup(id string) (domain.StationRecord, error)
}

// Resolver turns hit-test results into targets.
type Resolver struct {
	stations StationLookup
}

// NewResolver creates a Resolver backed by stations.
func NewResolver(stations StationLookup) *Resolver {
	return &Resolver{stations: stations}
}

// Resolve returns the station the hit landed on when its node id is a
// registered station. Any other hit is treated as a tap on the globe surface
// and resolved to the coordinate under the point.
func (r *Resolver) Resolve(h domain.Hit) (domain.HitTarget, error) {
	if h.NodeID != "" {
		st, err := r.stations.Lookup(h.NodeID)
		if err == nil {
			return domain.HitTarget{Kind: domain.HitStation, Station: &st}, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.HitTarget{}, fmt.Errorf("lookup node %q: %w", h.NodeID, err)
		}
	}

	c, err := sphere.Inverse(h.Point)
	if err != nil {
		return domain.HitTarget{}, fmt.Errorf("resolve surface hit: %w", err)
	}
	return domain.HitTarget{Kind: domain.HitCoordinate, Coordinate: &c}, nil
}
