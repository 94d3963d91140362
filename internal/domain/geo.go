package domain

import "fmt"

// GeoCoordinate is a WGS-84 latitude/longitude pair in degrees.
type GeoCoordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (c GeoCoordinate) String() string {
	return fmt.Sprintf("(%.4f, %.4f)", c.Latitude, c.Longitude)
}

// SpherePoint is a Cartesian point on a sphere centred at the origin. The
// radius it was projected with is not stored; callers track which surface a
// point belongs to.
type SpherePoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// IsZero reports whether p is the origin.
func (p SpherePoint) IsZero() bool {
	return p.X == 0 && p.Y == 0 && p.Z == 0
}

// PlaceKey identifies one geocoding request. Fields compare verbatim: case or
// whitespace variants are distinct keys. An empty State means no state.
type PlaceKey struct {
	Country string
	State   string
}

// Address is the free-text query sent to the geocoder, "<state>, <country>".
// A key without a state still carries the leading separator.
func (k PlaceKey) Address() string {
	return k.State + ", " + k.Country
}

func (k PlaceKey) String() string {
	return k.Country + "|" + k.State
}
