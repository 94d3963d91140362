// Package domain models radio stations placed on a rotating 3D globe.
//
// # Data Source
//
// Station records come from the Radio Browser directory
// (https://www.radio-browser.info). Each record carries a country name and an
// optional sub-region ("state"). Neither is normalized: "Texas" and "texas"
// are different places as far as geocoding is concerned.
//
// # Place Keys
//
// A [PlaceKey] is the (country, state) pair used to deduplicate geocoding
// requests. The free-text query sent to the geocoder is built by
// [PlaceKey.Address]:
//
//	PlaceKey{Country: "Mexico", State: "Jalisco"}  →  "Jalisco, Mexico"
//	PlaceKey{Country: "France"}                    →  ", France"
//
// # Sphere Convention
//
// Coordinates are projected onto spheres centred at the origin with
// latitude driving the y axis and longitude entering x and z:
//
//	x = r·cos(lat)·sin(lon)
//	y = r·sin(lat)
//	z = r·cos(lat)·cos(lon)
//
// The convention is arbitrary but fixed; package sphere implements both
// directions. Several surfaces render at once with different radii (0.81 for
// the preview globe, 1.01 for the full-screen globe) so a [SpherePoint] is
// only meaningful together with the surface it was produced for.
//
// # Errors
//
// No error in this module is fatal. [ErrGeocodeNotFound] and
// [ErrGeocodeService] cause a station to be skipped for now and retried on a
// later refresh. [ErrInvalidInput] marks a single bad item (a zero-magnitude
// point or a malformed record) and never aborts a batch.
package domain
