// Package types provides the core value types shared by every gridbench component.
package types

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// GeoPoint is a WGS84 coordinate. Points are values and never mutated once sampled.
type GeoPoint struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Validate checks that the point lies on the globe.
func (p GeoPoint) Validate() error {
	if math.IsNaN(p.Lat) || p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: %v", ErrInvalidLatitude, p.Lat)
	}
	if math.IsNaN(p.Lng) || p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("%w: %v", ErrInvalidLongitude, p.Lng)
	}
	return nil
}

// Orb converts the point to an orb.Point (lng, lat order).
func (p GeoPoint) Orb() orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

// PointFromOrb converts an orb.Point back to a GeoPoint.
func PointFromOrb(pt orb.Point) GeoPoint {
	return GeoPoint{Lat: pt.Lat(), Lng: pt.Lon()}
}

// Bounds is an axis-aligned lat/lng box. All edges are inclusive.
type Bounds struct {
	MinLat float64 `json:"min_lat" yaml:"min_lat" validate:"gte=-90,lte=90"`
	MinLng float64 `json:"min_lng" yaml:"min_lng" validate:"gte=-180,lte=180"`
	MaxLat float64 `json:"max_lat" yaml:"max_lat" validate:"gte=-90,lte=90"`
	MaxLng float64 `json:"max_lng" yaml:"max_lng" validate:"gte=-180,lte=180"`
}

// Validate rejects boxes that leave the globe or collapse on either axis.
func (b Bounds) Validate() error {
	if err := (GeoPoint{Lat: b.MinLat, Lng: b.MinLng}).Validate(); err != nil {
		return err
	}
	if err := (GeoPoint{Lat: b.MaxLat, Lng: b.MaxLng}).Validate(); err != nil {
		return err
	}
	if b.MinLat >= b.MaxLat || b.MinLng >= b.MaxLng {
		return fmt.Errorf("%w: lat [%v, %v] lng [%v, %v]",
			ErrDegenerateBounds, b.MinLat, b.MaxLat, b.MinLng, b.MaxLng)
	}
	return nil
}

// Contains reports whether p lies inside the box, edges included.
func (b Bounds) Contains(p GeoPoint) bool {
	return b.Orb().Contains(p.Orb())
}

// Orb converts the box to an orb.Bound.
func (b Bounds) Orb() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.MinLng, b.MinLat},
		Max: orb.Point{b.MaxLng, b.MaxLat},
	}
}

// Center returns the midpoint of the box.
func (b Bounds) Center() GeoPoint {
	return PointFromOrb(b.Orb().Center())
}

// Width returns the longitude span in degrees.
func (b Bounds) Width() float64 { return b.MaxLng - b.MinLng }

// Height returns the latitude span in degrees.
func (b Bounds) Height() float64 { return b.MaxLat - b.MinLat }

// Intersect clips b to other. The result may be degenerate when the boxes do not overlap.
func (b Bounds) Intersect(other Bounds) Bounds {
	return Bounds{
		MinLat: math.Max(b.MinLat, other.MinLat),
		MinLng: math.Max(b.MinLng, other.MinLng),
		MaxLat: math.Min(b.MaxLat, other.MaxLat),
		MaxLng: math.Min(b.MaxLng, other.MaxLng),
	}
}

// BoundsAround returns the box of half-size delta degrees centered on p.
func BoundsAround(p GeoPoint, delta float64) Bounds {
	bound := orb.Bound{Min: p.Orb(), Max: p.Orb()}.Pad(delta)
	return Bounds{
		MinLat: bound.Min.Lat(),
		MinLng: bound.Min.Lon(),
		MaxLat: bound.Max.Lat(),
		MaxLng: bound.Max.Lon(),
	}
}

// String renders the box for logs.
func (b Bounds) String() string {
	return fmt.Sprintf("lat[%.4f,%.4f] lng[%.4f,%.4f]", b.MinLat, b.MaxLat, b.MinLng, b.MaxLng)
}
