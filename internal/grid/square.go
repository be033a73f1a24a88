package grid

import (
	"math"

	gberr "github.com/arkilian/gridbench/internal/errors"
	"github.com/arkilian/gridbench/pkg/types"
)

// integerTolerance absorbs float error when checking cell-size multiples.
const integerTolerance = 1e-9

// SquareAdapter tiles bounds with square cells anchored at (MinLng, MinLat).
//
//	grid_x = floor((lng - min_lng) / size)
//	grid_y = floor((lat - min_lat) / size)
//
// Points on the max edges are assigned to the last column or row, so every
// point inside bounds maps to exactly one cell.
//
// Square grids have no natural hierarchy. Parent uses the divisor
// d = coarser / size, which must be a positive integer, and floor-divides both
// coordinates by d: the parent tiling shares the same origin.
type SquareAdapter struct {
	bounds types.Bounds
}

// NewSquareAdapter creates a square adapter anchored at bounds.
func NewSquareAdapter(bounds types.Bounds) *SquareAdapter {
	return &SquareAdapter{bounds: bounds}
}

func (a *SquareAdapter) Name() string             { return string(types.StrategySquare) }
func (a *SquareAdapter) Strategy() types.Strategy { return types.StrategySquare }

// ToCell returns the grid cell containing p for cell edge size.
func (a *SquareAdapter) ToCell(p types.GeoPoint, size types.Resolution) (types.CellID, error) {
	if err := checkSize(size); err != nil {
		return types.CellID{}, err
	}
	if err := p.Validate(); err != nil {
		return types.CellID{}, gberr.InvalidParameterCause("invalid point", err)
	}
	if !a.bounds.Contains(p) {
		return types.CellID{}, gberr.OutOfBounds("point %v outside %v", p, a.bounds)
	}

	s := float64(size)
	x := int64(math.Floor((p.Lng - a.bounds.MinLng) / s))
	y := int64(math.Floor((p.Lat - a.bounds.MinLat) / s))

	x = min(x, cellCount(a.bounds.Width(), s)-1)
	y = min(y, cellCount(a.bounds.Height(), s)-1)

	return types.SquareCell(x, y, size), nil
}

// Neighbors returns the (2k+1)x(2k+1) block centered on c, c included.
// The block is not clipped to bounds.
func (a *SquareAdapter) Neighbors(c types.CellID, ringSize int) ([]types.CellID, error) {
	if err := a.checkCell(c); err != nil {
		return nil, err
	}
	if ringSize < 0 {
		return nil, gberr.InvalidParameter("ring size must be non-negative, got %d", ringSize)
	}

	k := int64(ringSize)
	side := 2*k + 1
	cells := make([]types.CellID, 0, side*side)
	for dx := -k; dx <= k; dx++ {
		for dy := -k; dy <= k; dy++ {
			cells = append(cells, types.SquareCell(c.X+dx, c.Y+dy, c.Res))
		}
	}
	return sortCells(cells), nil
}

// Parent floor-divides the grid coordinates by coarser/size.
func (a *SquareAdapter) Parent(c types.CellID, coarser types.Resolution) (types.CellID, error) {
	if err := a.checkCell(c); err != nil {
		return types.CellID{}, err
	}
	if err := checkSize(coarser); err != nil {
		return types.CellID{}, err
	}

	d, err := ParentDivisor(c.Res, coarser)
	if err != nil {
		return types.CellID{}, err
	}
	return types.SquareCell(floorDiv(c.X, d), floorDiv(c.Y, d), coarser), nil
}

// ParentDivisor returns coarser/size when it is a positive integer.
func ParentDivisor(size, coarser types.Resolution) (int64, error) {
	ratio := float64(coarser) / float64(size)
	d := math.Round(ratio)
	if d < 1 || math.Abs(ratio-d) > integerTolerance {
		return 0, gberr.InvalidParameter("coarser cell size %s must be a positive integer multiple of %s", coarser, size)
	}
	return int64(d), nil
}

// Center returns the midpoint of c.
func (a *SquareAdapter) Center(c types.CellID) (types.GeoPoint, error) {
	if err := a.checkCell(c); err != nil {
		return types.GeoPoint{}, err
	}
	s := float64(c.Res)
	return types.GeoPoint{
		Lat: a.bounds.MinLat + (float64(c.Y)+0.5)*s,
		Lng: a.bounds.MinLng + (float64(c.X)+0.5)*s,
	}, nil
}

// Boundary returns the four corners of c counter-clockwise from the south-west.
func (a *SquareAdapter) Boundary(c types.CellID) ([]types.GeoPoint, error) {
	if err := a.checkCell(c); err != nil {
		return nil, err
	}
	s := float64(c.Res)
	minLat := a.bounds.MinLat + float64(c.Y)*s
	minLng := a.bounds.MinLng + float64(c.X)*s
	return []types.GeoPoint{
		{Lat: minLat, Lng: minLng},
		{Lat: minLat, Lng: minLng + s},
		{Lat: minLat + s, Lng: minLng + s},
		{Lat: minLat + s, Lng: minLng},
	}, nil
}

// CellBounds returns the lat/lng box covered by c.
func (a *SquareAdapter) CellBounds(c types.CellID) types.Bounds {
	s := float64(c.Res)
	minLat := a.bounds.MinLat + float64(c.Y)*s
	minLng := a.bounds.MinLng + float64(c.X)*s
	return types.Bounds{MinLat: minLat, MinLng: minLng, MaxLat: minLat + s, MaxLng: minLng + s}
}

func (a *SquareAdapter) checkCell(c types.CellID) error {
	if c.Strategy != types.StrategySquare {
		return gberr.InvalidParameter("square adapter cannot handle %s cell %s", c.Strategy, c)
	}
	return checkSize(c.Res)
}

func checkSize(size types.Resolution) error {
	if !(size > 0) || math.IsInf(float64(size), 0) {
		return gberr.InvalidParameter("square cell size must be positive, got %s", size)
	}
	return nil
}

// cellCount is the number of cells spanning extent, at least one.
func cellCount(extent, size float64) int64 {
	n := int64(math.Ceil(extent/size - integerTolerance))
	return max(n, 1)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// CoverBox enumerates the grid block between the cells of the clipped box's corners.
func (a *SquareAdapter) CoverBox(box types.Bounds, size types.Resolution) ([]types.CellID, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}
	clip := box.Intersect(a.bounds)
	if clip.MinLat > clip.MaxLat || clip.MinLng > clip.MaxLng {
		return nil, nil
	}

	lo, err := a.ToCell(types.GeoPoint{Lat: clip.MinLat, Lng: clip.MinLng}, size)
	if err != nil {
		return nil, err
	}
	hi, err := a.ToCell(types.GeoPoint{Lat: clip.MaxLat, Lng: clip.MaxLng}, size)
	if err != nil {
		return nil, err
	}

	cells := make([]types.CellID, 0, (hi.X-lo.X+1)*(hi.Y-lo.Y+1))
	for x := lo.X; x <= hi.X; x++ {
		for y := lo.Y; y <= hi.Y; y++ {
			cells = append(cells, types.SquareCell(x, y, size))
		}
	}
	return cells, nil
}
