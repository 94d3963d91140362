package domain

import "context"

// Geocoder resolves a free-text place description to coordinates.
type Geocoder interface {
	// Geocode returns the best match for address. Implementations return an
	// error wrapping ErrGeocodeNotFound when the place yields no result and
	// one wrapping ErrGeocodeService when the service itself failed.
	Geocode(ctx context.Context, address string) (GeoCoordinate, error)
}
