// Package registry maps station ids to station records so that a hit test on
// a marker can be resolved back to the station it represents.
package registry

import (
	"fmt"
	"sync"

	"github.com/couchcryptid/station-globe/internal/domain"
)

// Registry is an append/overwrite-only station index, safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	stations map[string]domain.StationRecord
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{stations: make(map[string]domain.StationRecord)}
}

// Register upserts rec by id. A later registration of the same id replaces
// every field of the earlier one.
func (r *Registry) Register(rec domain.StationRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.stations[rec.ID] = rec
	return nil
}

// Lookup returns the station registered under id.
func (r *Registry) Lookup(id string) (domain.StationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.stations[id]
	if !ok {
		return domain.StationRecord{}, fmt.Errorf("station %q: %w", id, domain.ErrNotFound)
	}
	return rec, nil
}

// Len returns the number of registered stations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stations)
}
