// Package dataset attaches synthetic attributes and cell identifiers to sampled points.
package dataset

import (
	"errors"
	"fmt"
	"math/rand"

	gberr "github.com/arkilian/gridbench/internal/errors"
	"github.com/arkilian/gridbench/internal/grid"
	"github.com/arkilian/gridbench/pkg/types"
)

// ValueRange bounds the synthetic value column: [Min, Max).
type ValueRange struct {
	Min float64
	Max float64
}

// Result is a built dataset for one adapter.
type Result struct {
	Adapter string
	Res     types.Resolution
	Records []types.LocationRecord

	// Dropped counts points the adapter rejected as out of bounds
	Dropped int
}

// MaxID returns the largest record id, or 0 for an empty dataset.
func (r *Result) MaxID() int64 {
	if len(r.Records) == 0 {
		return 0
	}
	return r.Records[len(r.Records)-1].ID
}

// Build turns points into records indexed by adapter at res.
//
// Record ids are the point's position plus one, so the same point carries the
// same id, category, and value under every adapter built with the same seed.
// Attributes are drawn before indexing; a dropped point still consumes its draws.
func Build(points []types.GeoPoint, adapter grid.Adapter, res types.Resolution, categories []string, values ValueRange, seed int64) (*Result, error) {
	if adapter == nil {
		return nil, gberr.InvalidParameter("adapter is required")
	}
	if len(categories) == 0 {
		return nil, gberr.InvalidParameter("category pool must not be empty")
	}
	if values.Min > values.Max {
		return nil, gberr.InvalidParameter("value range min %v exceeds max %v", values.Min, values.Max)
	}

	rng := rand.New(rand.NewSource(seed))
	result := &Result{
		Adapter: adapter.Name(),
		Res:     res,
		Records: make([]types.LocationRecord, 0, len(points)),
	}

	for i, p := range points {
		id := int64(i + 1)
		category := categories[rng.Intn(len(categories))]
		value := values.Min + rng.Float64()*(values.Max-values.Min)

		cell, err := adapter.ToCell(p, res)
		if err != nil {
			if errors.Is(err, gberr.ErrOutOfBounds) {
				result.Dropped++
				continue
			}
			return nil, fmt.Errorf("index point %d: %w", id, err)
		}

		result.Records = append(result.Records, types.LocationRecord{
			ID:       id,
			Name:     fmt.Sprintf("loc_%d", id),
			Point:    p,
			Cell:     cell,
			Res:      res,
			Category: category,
			Value:    value,
		})
	}

	return result, nil
}

// IDs returns the record ids in dataset order.
func (r *Result) IDs() []int64 {
	ids := make([]int64, len(r.Records))
	for i, rec := range r.Records {
		ids[i] = rec.ID
	}
	return ids
}
