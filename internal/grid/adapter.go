// Package grid provides the spatial indexing adapters compared by gridbench.
//
// Both adapters satisfy the same Adapter interface so that dataset building
// and workload execution never branch on the strategy. Neighbor rings always
// include the origin cell: ring 0 is the cell itself.
package grid

import (
	"slices"

	"github.com/arkilian/gridbench/pkg/types"
)

// Adapter maps points to cells and answers topology queries for one strategy.
type Adapter interface {
	// Name is the label used in samples and reports.
	Name() string

	// Strategy identifies the tiling.
	Strategy() types.Strategy

	// ToCell returns the cell containing p at res. Points outside the adapter's
	// extent fail with an OutOfBounds error.
	ToCell(p types.GeoPoint, res types.Resolution) (types.CellID, error)

	// Neighbors returns every cell within ringSize steps of c, c included,
	// in a deterministic order.
	Neighbors(c types.CellID, ringSize int) ([]types.CellID, error)

	// Parent returns the cell containing c at a coarser resolution.
	Parent(c types.CellID, coarser types.Resolution) (types.CellID, error)

	// CoverBox returns every cell at res that intersects box, possibly with
	// a margin of adjacent cells. The part of box outside the adapter's
	// extent is ignored.
	CoverBox(box types.Bounds, res types.Resolution) ([]types.CellID, error)
}

// Geometry is implemented by adapters that can describe cell shapes.
type Geometry interface {
	Center(c types.CellID) (types.GeoPoint, error)
	Boundary(c types.CellID) ([]types.GeoPoint, error)
}

// NewAdapters returns the hex and square adapters for bounds, hex first.
func NewAdapters(bounds types.Bounds) []Adapter {
	return []Adapter{NewHexAdapter(bounds), NewSquareAdapter(bounds)}
}

func sortCells(cells []types.CellID) []types.CellID {
	slices.SortFunc(cells, types.CellID.Compare)
	return slices.Compact(cells)
}
