// Package geocache puts a coalescing cache in front of a geocoding service.
//
// Every PlaceKey has at most one outstanding request to the geocoder. Callers
// that ask for a key while its lookup is running wait for that lookup instead
// of starting another one. Successful results are kept for the lifetime of the
// Cache; failures are never kept, so the next caller retries.
package geocache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/couchcryptid/station-globe/internal/domain"
	"github.com/couchcryptid/station-globe/internal/observability"
)

// Cache resolves PlaceKeys to coordinates through a domain.Geocoder.
// It is safe for concurrent use.
type Cache struct {
	geocoder domain.Geocoder
	metrics  *observability.Metrics
	logger   *slog.Logger

	mu       sync.Mutex
	store    store
	inflight map[domain.PlaceKey]*call
	stats    Stats
}

// Stats counts cache outcomes since construction.
type Stats struct {
	Hits     uint64 // served from a resolved entry
	Misses   uint64 // started a geocoder request
	Joins    uint64 // waited on another caller's request
	Failures uint64 // geocoder requests that did not yield a coordinate
}

// call is one geocoder request shared by every waiter on its key.
type call struct {
	done    chan struct{}
	coord   domain.GeoCoordinate
	err     error
	waiters int

	// abandoned is set once every waiter has left; the request is being
	// cancelled and must not be joined.
	abandoned bool
	cancel    context.CancelFunc
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	capacity int
}

// WithCapacity bounds the number of resolved entries, evicting the least
// recently used key beyond it. Zero or a negative value keeps the cache
// unbounded, which is the default.
func WithCapacity(n int) Option {
	return func(o *options) { o.capacity = n }
}

// New creates a Cache in front of geocoder.
func New(geocoder domain.Geocoder, metrics *observability.Metrics, logger *slog.Logger, opts ...Option) (*Cache, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var s store = mapStore{}
	if o.capacity > 0 {
		ls, err := newLRUStore(o.capacity)
		if err != nil {
			return nil, err
		}
		s = ls
	}

	return &Cache{
		geocoder: geocoder,
		metrics:  metrics,
		logger:   logger,
		store:    s,
		inflight: make(map[domain.PlaceKey]*call),
	}, nil
}

// Resolve returns the coordinate of key.
//
// A resolved key is returned without contacting the geocoder, even when ctx is
// already done. Otherwise Resolve joins the running request for key or starts
// one. Failed lookups return an error wrapping domain.ErrGeocodeNotFound; when
// ctx ends first Resolve returns ctx.Err(). The request itself is only
// cancelled once all of its waiters have gone.
func (c *Cache) Resolve(ctx context.Context, key domain.PlaceKey) (domain.GeoCoordinate, error) {
	for {
		c.mu.Lock()
		if coord, ok := c.store.get(key); ok {
			c.stats.Hits++
			c.mu.Unlock()
			c.metrics.GeocodeCache.WithLabelValues("hit").Inc()
			return coord, nil
		}

		cl, ok := c.inflight[key]
		if ok && cl.abandoned {
			// Wait for the cancelled request to unwind so that a key never
			// has two requests outstanding, then look again.
			c.mu.Unlock()
			select {
			case <-cl.done:
				continue
			case <-ctx.Done():
				return domain.GeoCoordinate{}, ctx.Err()
			}
		}

		if ok {
			cl.waiters++
			c.stats.Joins++
			c.mu.Unlock()
			c.metrics.GeocodeCache.WithLabelValues("join").Inc()
		} else {
			cl = c.start(ctx, key)
			c.mu.Unlock()
			c.metrics.GeocodeCache.WithLabelValues("miss").Inc()
		}

		return c.wait(ctx, key, cl)
	}
}

// start registers and launches a request for key. c.mu must be held.
func (c *Cache) start(ctx context.Context, key domain.PlaceKey) *call {
	// The request outlives the caller that started it; it is tied to the
	// waiters as a group instead.
	reqCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cl := &call{
		done:    make(chan struct{}),
		waiters: 1,
		cancel:  cancel,
	}
	c.inflight[key] = cl
	c.stats.Misses++

	go c.lookup(reqCtx, key, cl)
	return cl
}

func (c *Cache) wait(ctx context.Context, key domain.PlaceKey, cl *call) (domain.GeoCoordinate, error) {
	select {
	case <-cl.done:
		return cl.coord, cl.err
	case <-ctx.Done():
		c.leave(key, cl)
		return domain.GeoCoordinate{}, ctx.Err()
	}
}

// leave drops one waiter from cl and cancels the request when none remain.
func (c *Cache) leave(key domain.PlaceKey, cl *call) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cl.waiters--
	if cl.waiters > 0 || cl.abandoned {
		return
	}
	select {
	case <-cl.done:
		return
	default:
	}
	cl.abandoned = true
	cl.cancel()
	c.logger.Debug("geocode request abandoned", "country", key.Country, "state", key.State)
}

func (c *Cache) lookup(ctx context.Context, key domain.PlaceKey, cl *call) {
	defer cl.cancel()

	address := key.Address()
	coord, err := c.geocoder.Geocode(ctx, address)

	c.mu.Lock()
	if c.inflight[key] == cl {
		delete(c.inflight, key)
	}
	result := outcome(err, cl.abandoned)
	if err == nil {
		// A resolved value never changes once stored.
		if existing, ok := c.store.get(key); ok {
			coord = existing
		} else {
			c.store.add(key, coord)
		}
	} else {
		c.stats.Failures++
		err = notFound(key, err)
	}
	abandoned := cl.abandoned
	cl.coord, cl.err = coord, err
	close(cl.done)
	c.mu.Unlock()

	c.metrics.GeocodeRequests.WithLabelValues(result).Inc()
	if err != nil && !abandoned {
		c.logger.Warn("geocode lookup failed",
			"address", address,
			"error", err,
		)
	}
}

// Len returns the number of resolved entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.len()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// notFound folds any geocoder failure into ErrGeocodeNotFound while keeping
// the cause visible to errors.Is.
func notFound(key domain.PlaceKey, err error) error {
	if errors.Is(err, domain.ErrGeocodeNotFound) {
		return fmt.Errorf("resolve %s: %w", key, err)
	}
	return fmt.Errorf("resolve %s: %w: %w", key, domain.ErrGeocodeNotFound, err)
}

func outcome(err error, abandoned bool) string {
	switch {
	case err == nil:
		return "success"
	case abandoned:
		return "cancelled"
	case errors.Is(err, domain.ErrGeocodeNotFound):
		return "not_found"
	default:
		return "error"
	}
}
