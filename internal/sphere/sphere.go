// Package sphere converts between geographic coordinates and points on
// origin-centred spheres of arbitrary radius.
package sphere

import (
	"fmt"
	"math"

	"github.com/couchcryptid/station-globe/internal/domain"
)

const (
	degToRad = math.Pi / 180
	radToDeg = 180 / math.Pi
)

// Forward projects c onto the sphere of the given radius.
func Forward(c domain.GeoCoordinate, radius float64) (domain.SpherePoint, error) {
	if !(radius > 0) || math.IsInf(radius, 0) {
		return domain.SpherePoint{}, fmt.Errorf("radius %v: %w", radius, domain.ErrInvalidInput)
	}
	if !finite(c.Latitude) || !finite(c.Longitude) {
		return domain.SpherePoint{}, fmt.Errorf("coordinate %v: %w", c, domain.ErrInvalidInput)
	}

	lat := c.Latitude * degToRad
	lon := c.Longitude * degToRad

	return domain.SpherePoint{
		X: radius * math.Cos(lat) * math.Sin(lon),
		Y: radius * math.Sin(lat),
		Z: radius * math.Cos(lat) * math.Cos(lon),
	}, nil
}

// Inverse recovers the coordinate of p. It normalizes by the magnitude of p,
// so the result does not depend on the radius p was projected with.
func Inverse(p domain.SpherePoint) (domain.GeoCoordinate, error) {
	if !finite(p.X) || !finite(p.Y) || !finite(p.Z) {
		return domain.GeoCoordinate{}, fmt.Errorf("point %+v: %w", p, domain.ErrInvalidInput)
	}
	r := math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
	if r == 0 {
		return domain.GeoCoordinate{}, fmt.Errorf("zero-magnitude point: %w", domain.ErrInvalidInput)
	}

	// Rounding can push y/r a hair outside [-1, 1] at the poles.
	s := math.Max(-1, math.Min(1, p.Y/r))

	return domain.GeoCoordinate{
		Latitude:  math.Asin(s) * radToDeg,
		Longitude: math.Atan2(p.X, p.Z) * radToDeg,
	}, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
