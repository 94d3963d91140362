package domain

import (
	"fmt"
	"strings"
	"time"
)

// StationRecord is a radio station as supplied by the station data source.
// State and Language are optional and empty when absent.
type StationRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	Favicon     string `json:"favicon,omitempty"`
	Tags        string `json:"tags,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
	Country     string `json:"country"`
	State       string `json:"state,omitempty"`
	Language    string `json:"language,omitempty"`
}

// Key derives the geocoding key of the station.
func (s StationRecord) Key() PlaceKey {
	return PlaceKey{Country: s.Country, State: s.State}
}

// Validate reports whether the record can be placed on a globe.
func (s StationRecord) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("station without id: %w", ErrInvalidInput)
	}
	if strings.TrimSpace(s.Country) == "" {
		return fmt.Errorf("station %s without country: %w", s.ID, ErrInvalidInput)
	}
	return nil
}

// Placement is emitted once per (station, surface) pair.
type Placement struct {
	StationID  string        `json:"station_id"`
	SurfaceID  string        `json:"surface_id"`
	Point      SpherePoint   `json:"point"`
	Coordinate GeoCoordinate `json:"coordinate"`
	PlacedAt   time.Time     `json:"placed_at"`
}

// Hit is the result of a tap on a render surface. NodeID is empty when the
// tap did not land on a marker node.
type Hit struct {
	NodeID string      `json:"node_id,omitempty"`
	Point  SpherePoint `json:"point"`
}

// HitKind tells which field of a HitTarget is set.
type HitKind string

const (
	HitStation    HitKind = "station"
	HitCoordinate HitKind = "coordinate"
)

// HitTarget is either a registered station or a point on the globe surface.
type HitTarget struct {
	Kind       HitKind        `json:"kind"`
	Station    *StationRecord `json:"station,omitempty"`
	Coordinate *GeoCoordinate `json:"coordinate,omitempty"`
}
