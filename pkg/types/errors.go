package types

import "errors"

// Coordinate validation errors
var (
	// ErrInvalidLatitude is returned when a latitude falls outside [-90, 90]
	ErrInvalidLatitude = errors.New("latitude out of range [-90, 90]")

	// ErrInvalidLongitude is returned when a longitude falls outside [-180, 180]
	ErrInvalidLongitude = errors.New("longitude out of range [-180, 180]")

	// ErrDegenerateBounds is returned when min >= max on either axis of a Bounds
	ErrDegenerateBounds = errors.New("degenerate bounds: min must be below max on both axes")
)
