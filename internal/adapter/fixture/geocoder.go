// Package fixture provides file-backed collaborators for offline runs and tests.
package fixture

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/couchcryptid/station-globe/internal/domain"
)

// Geocoder answers geocoding queries from a fixed address table. Addresses
// must match domain.PlaceKey.Address exactly.
type Geocoder struct {
	mu    sync.RWMutex
	table map[string]domain.GeoCoordinate
}

// NewGeocoder creates a Geocoder over a copy of table.
func NewGeocoder(table map[string]domain.GeoCoordinate) *Geocoder {
	t := make(map[string]domain.GeoCoordinate, len(table))
	for k, v := range table {
		t[k] = v
	}
	return &Geocoder{table: t}
}

// LoadGeocoder reads a JSON object of address → {latitude, longitude}.
func LoadGeocoder(path string) (*Geocoder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read geocode fixture: %w", err)
	}
	var table map[string]domain.GeoCoordinate
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parse geocode fixture %s: %w", path, err)
	}
	return NewGeocoder(table), nil
}

// Geocode implements domain.Geocoder.
func (g *Geocoder) Geocode(ctx context.Context, address string) (domain.GeoCoordinate, error) {
	if err := ctx.Err(); err != nil {
		return domain.GeoCoordinate{}, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.table[address]
	if !ok {
		return domain.GeoCoordinate{}, fmt.Errorf("%q: %w", address, domain.ErrGeocodeNotFound)
	}
	return c, nil
}

// Set adds or replaces an address.
func (g *Geocoder) Set(address string, c domain.GeoCoordinate) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.table[address] = c
}

// LoadStations reads a JSON array of station records.
func LoadStations(path string) ([]domain.StationRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read station fixture: %w", err)
	}
	var stations []domain.StationRecord
	if err := json.Unmarshal(data, &stations); err != nil {
		return nil, fmt.Errorf("parse station fixture %s: %w", path, err)
	}
	return stations, nil
}
