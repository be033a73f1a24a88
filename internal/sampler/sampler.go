// Package sampler generates reproducible synthetic coordinate sets.
package sampler

import (
	"math"
	"math/rand"

	"github.com/arkilian/gridbench/internal/config"
	gberr "github.com/arkilian/gridbench/internal/errors"
	"github.com/arkilian/gridbench/pkg/types"
)

// Distribution draws one point inside bounds from rng.
type Distribution interface {
	Name() string
	validate() error
	draw(rng *rand.Rand, bounds types.Bounds) types.GeoPoint
}

// Sample returns exactly n points inside bounds. The sequence depends only on
// the arguments: identical calls return identical points.
func Sample(n int, bounds types.Bounds, dist Distribution, seed int64) ([]types.GeoPoint, error) {
	if n <= 0 {
		return nil, gberr.InvalidParameter("sample size must be positive, got %d", n)
	}
	if err := bounds.Validate(); err != nil {
		return nil, gberr.InvalidParameterCause("invalid sample bounds", err)
	}
	if dist == nil {
		return nil, gberr.InvalidParameter("distribution is required")
	}
	if err := dist.validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(seed))
	points := make([]types.GeoPoint, n)
	for i := range points {
		points[i] = dist.draw(rng, bounds)
	}
	return points, nil
}

// Uniform draws latitude and longitude independently and uniformly.
type Uniform struct{}

func (Uniform) Name() string    { return config.DistributionUniform }
func (Uniform) validate() error { return nil }

func (Uniform) draw(rng *rand.Rand, b types.Bounds) types.GeoPoint {
	return types.GeoPoint{
		Lat: clamp(b.MinLat+rng.Float64()*b.Height(), b.MinLat, b.MaxLat),
		Lng: clamp(b.MinLng+rng.Float64()*b.Width(), b.MinLng, b.MaxLng),
	}
}

// Center is one weighted cluster center.
type Center struct {
	Point  types.GeoPoint
	Weight float64
}

// Clustered draws Gaussian offsets around weighted centers. A NearShare
// fraction of points uses NearStd; the rest use the wider FarStd. Results
// are clamped into the bounds.
type Clustered struct {
	Centers   []Center
	NearStd   float64
	FarStd    float64
	NearShare float64

	cumulative []float64
}

// NewClustered returns a clustered distribution with 70% of points at 0.005°
// spread and 30% at 0.015°.
func NewClustered(centers []Center) *Clustered {
	c := &Clustered{
		Centers:   centers,
		NearStd:   0.005,
		FarStd:    0.015,
		NearShare: 0.7,
	}
	c.cumulative = cumulativeWeights(centers)
	return c
}

func (c *Clustered) Name() string { return config.DistributionClustered }

func (c *Clustered) validate() error {
	if len(c.Centers) == 0 {
		return gberr.InvalidParameter("clustered distribution needs at least one center")
	}
	for i, center := range c.Centers {
		if center.Weight <= 0 || math.IsNaN(center.Weight) {
			return gberr.InvalidParameter("cluster center %d has non-positive weight %v", i, center.Weight)
		}
		if err := center.Point.Validate(); err != nil {
			return gberr.InvalidParameterCause("invalid cluster center", err)
		}
	}
	if c.NearStd < 0 || c.FarStd < 0 {
		return gberr.InvalidParameter("cluster spread must be non-negative")
	}
	if c.NearShare < 0 || c.NearShare > 1 {
		return gberr.InvalidParameter("near share must be within [0, 1], got %v", c.NearShare)
	}
	if len(c.cumulative) != len(c.Centers) {
		c.cumulative = cumulativeWeights(c.Centers)
	}
	return nil
}

func (c *Clustered) draw(rng *rand.Rand, b types.Bounds) types.GeoPoint {
	center := c.Centers[c.pick(rng.Float64())]

	std := c.FarStd
	if rng.Float64() < c.NearShare {
		std = c.NearStd
	}

	return types.GeoPoint{
		Lat: clamp(center.Point.Lat+rng.NormFloat64()*std, b.MinLat, b.MaxLat),
		Lng: clamp(center.Point.Lng+rng.NormFloat64()*std, b.MinLng, b.MaxLng),
	}
}

// pick maps u in [0,1) onto a center index by normalized weight.
func (c *Clustered) pick(u float64) int {
	for i, edge := range c.cumulative {
		if u < edge {
			return i
		}
	}
	return len(c.cumulative) - 1
}

func cumulativeWeights(centers []Center) []float64 {
	var total float64
	for _, center := range centers {
		total += center.Weight
	}
	out := make([]float64, len(centers))
	var running float64
	for i, center := range centers {
		running += center.Weight
		out[i] = running / total
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// FromConfig builds the distribution named by cfg.
func FromConfig(cfg *config.Config) (Distribution, error) {
	switch cfg.Distribution {
	case config.DistributionUniform:
		return Uniform{}, nil
	case config.DistributionClustered:
		centers := make([]Center, len(cfg.Clusters))
		for i, c := range cfg.Clusters {
			centers[i] = Center{Point: types.GeoPoint{Lat: c.Lat, Lng: c.Lng}, Weight: c.Weight}
		}
		return NewClustered(centers), nil
	default:
		return nil, gberr.InvalidParameter("unknown distribution %q", cfg.Distribution)
	}
}
