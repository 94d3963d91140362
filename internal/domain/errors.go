package domain

import "errors"

var (
	// ErrGeocodeNotFound means the place description yielded no result.
	ErrGeocodeNotFound = errors.New("geocode: place not found")

	// ErrGeocodeService means the geocoding service could not be reached or
	// answered with a failure. It is retryable.
	ErrGeocodeService = errors.New("geocode: service error")

	// ErrInvalidInput marks a value no component can process: a zero-magnitude
	// sphere point, a non-positive radius, or a malformed station record.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound is returned by lookups that miss.
	ErrNotFound = errors.New("not found")
)
