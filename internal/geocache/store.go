package geocache

import (
	"fmt"

	"github.com/couchcryptid/station-globe/internal/domain"
	lru "github.com/hashicorp/golang-lru/v2"
)

// store holds resolved coordinates. Implementations are guarded by Cache.mu.
type store interface {
	get(key domain.PlaceKey) (domain.GeoCoordinate, bool)
	add(key domain.PlaceKey, coord domain.GeoCoordinate)
	len() int
}

// mapStore never evicts.
type mapStore map[domain.PlaceKey]domain.GeoCoordinate

func (s mapStore) get(key domain.PlaceKey) (domain.GeoCoordinate, bool) {
	c, ok := s[key]
	return c, ok
}

func (s mapStore) add(key domain.PlaceKey, coord domain.GeoCoordinate) { s[key] = coord }

func (s mapStore) len() int { return len(s) }

// lruStore evicts the least recently resolved key once capacity is reached.
type lruStore struct {
	cache *lru.Cache[domain.PlaceKey, domain.GeoCoordinate]
}

func newLRUStore(capacity int) (*lruStore, error) {
	c, err := lru.New[domain.PlaceKey, domain.GeoCoordinate](capacity)
	if err != nil {
		return nil, fmt.Errorf("creating LRU store: %w", err)
	}
	return &lruStore{cache: c}, nil
}

func (s *lruStore) get(key domain.PlaceKey) (domain.GeoCoordinate, bool) { return s.cache.Get(key) }

func (s *lruStore) add(key domain.PlaceKey, coord domain.GeoCoordinate) { s.cache.Add(key, coord) }

func (s *lruStore) len() int { return s.cache.Len() }
