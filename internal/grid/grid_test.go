package grid

import (
	"fmt"
	"math"
	"math/rand"
	"slices"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gberr "github.com/arkilian/gridbench/internal/errors"
	"github.com/arkilian/gridbench/pkg/types"
)

var seoul = types.Bounds{MinLat: 37.4, MinLng: 126.8, MaxLat: 37.7, MaxLng: 127.1}

const (
	hexRes    = types.Resolution(8)
	squareRes = types.Resolution(0.01)
)

func resFor(a Adapter) types.Resolution {
	if a.Strategy() == types.StrategyHex {
		return hexRes
	}
	return squareRes
}

func TestSquare_ToCellFormula(t *testing.T) {
	a := NewSquareAdapter(seoul)

	c, err := a.ToCell(types.GeoPoint{Lat: 37.4155, Lng: 126.8234}, squareRes)
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.X)
	assert.Equal(t, int64(1), c.Y)
	assert.Equal(t, types.StrategySquare, c.Strategy)
}

func TestSquare_BoundaryEdges(t *testing.T) {
	a := NewSquareAdapter(seoul)

	origin, err := a.ToCell(types.GeoPoint{Lat: seoul.MinLat, Lng: seoul.MinLng}, squareRes)
	require.NoError(t, err)
	assert.Equal(t, types.SquareCell(0, 0, squareRes), origin)

	corner, err := a.ToCell(types.GeoPoint{Lat: seoul.MaxLat, Lng: seoul.MaxLng}, squareRes)
	require.NoError(t, err)
	assert.Equal(t, types.SquareCell(29, 29, squareRes), corner, "max edge clamps into the last cell")

	// Interior grid line belongs to the cell above/right of it
	line, err := a.ToCell(types.GeoPoint{Lat: 37.5, Lng: 126.95}, squareRes)
	require.NoError(t, err)
	assert.Equal(t, types.SquareCell(15, 10, squareRes), line)
}

func TestAdapters_OutOfBounds(t *testing.T) {
	for _, a := range NewAdapters(seoul) {
		_, err := a.ToCell(types.GeoPoint{Lat: 36.0, Lng: 127.0}, resFor(a))
		assert.ErrorIs(t, err, gberr.ErrOutOfBounds, a.Name())
	}
}

func TestAdapters_InvalidResolution(t *testing.T) {
	p := types.GeoPoint{Lat: 37.5, Lng: 127.0}

	hex := NewHexAdapter(seoul)
	for _, res := range []types.Resolution{-1, 16, 7.5} {
		_, err := hex.ToCell(p, res)
		assert.ErrorIs(t, err, gberr.ErrInvalidParameter, "hex res %s", res)
	}

	square := NewSquareAdapter(seoul)
	for _, res := range []types.Resolution{0, -0.01} {
		_, err := square.ToCell(p, res)
		assert.ErrorIs(t, err, gberr.ErrInvalidParameter, "square size %s", res)
	}
}

func TestAdapters_RingZeroIsSelf(t *testing.T) {
	p := types.GeoPoint{Lat: 37.5665, Lng: 126.9780}
	for _, a := range NewAdapters(seoul) {
		c, err := a.ToCell(p, resFor(a))
		require.NoError(t, err)

		ring, err := a.Neighbors(c, 0)
		require.NoError(t, err)
		assert.Equal(t, []types.CellID{c}, ring, a.Name())

		_, err = a.Neighbors(c, -1)
		assert.ErrorIs(t, err, gberr.ErrInvalidParameter)
	}
}

func TestAdapters_RingSizes(t *testing.T) {
	p := types.GeoPoint{Lat: 37.5665, Lng: 126.9780}
	hex := NewHexAdapter(seoul)
	square := NewSquareAdapter(seoul)

	hc, err := hex.ToCell(p, hexRes)
	require.NoError(t, err)
	sc, err := square.ToCell(p, squareRes)
	require.NoError(t, err)

	for k := 1; k <= 3; k++ {
		hexRing, err := hex.Neighbors(hc, k)
		require.NoError(t, err)
		assert.Len(t, hexRing, 3*k*(k+1)+1, "hex ring %d", k)
		assert.Contains(t, hexRing, hc)

		squareRing, err := square.Neighbors(sc, k)
		require.NoError(t, err)
		assert.Len(t, squareRing, (2*k+1)*(2*k+1), "square ring %d", k)
		assert.Contains(t, squareRing, sc)
	}
}

func TestAdapters_RejectForeignCells(t *testing.T) {
	hex := NewHexAdapter(seoul)
	square := NewSquareAdapter(seoul)

	_, err := hex.Neighbors(types.SquareCell(1, 1, squareRes), 1)
	assert.ErrorIs(t, err, gberr.ErrInvalidParameter)
	_, err = square.Neighbors(types.HexCell(1, 8), 1)
	assert.ErrorIs(t, err, gberr.ErrInvalidParameter)
}

func TestSquare_Parent(t *testing.T) {
	a := NewSquareAdapter(seoul)

	parent, err := a.Parent(types.SquareCell(9, 4, squareRes), 0.04)
	require.NoError(t, err)
	assert.Equal(t, types.SquareCell(2, 1, 0.04), parent)

	// Floor division keeps negative neighbors in the correct parent
	parent, err = a.Parent(types.SquareCell(-1, -4, squareRes), 0.04)
	require.NoError(t, err)
	assert.Equal(t, types.SquareCell(-1, -1, 0.04), parent)

	_, err = a.Parent(types.SquareCell(9, 4, squareRes), 0.025)
	assert.ErrorIs(t, err, gberr.ErrInvalidParameter)

	_, err = a.Parent(types.SquareCell(9, 4, squareRes), 0.005)
	assert.ErrorIs(t, err, gberr.ErrInvalidParameter)
}

func TestHex_ParentAndParse(t *testing.T) {
	a := NewHexAdapter(seoul)
	c, err := a.ToCell(types.GeoPoint{Lat: 37.5665, Lng: 126.9780}, hexRes)
	require.NoError(t, err)

	parent, err := a.Parent(c, 6)
	require.NoError(t, err)
	assert.Equal(t, types.Resolution(6), parent.Res)
	assert.NotEqual(t, c.Token, parent.Token)

	same, err := a.Parent(c, hexRes)
	require.NoError(t, err)
	assert.Equal(t, c, same)

	_, err = a.Parent(c, 9)
	assert.ErrorIs(t, err, gberr.ErrInvalidParameter)

	parsed, err := ParseHexCell(c.String())
	require.NoError(t, err)
	assert.Equal(t, c, parsed)

	_, err = ParseHexCell("not-a-cell")
	assert.ErrorIs(t, err, gberr.ErrInvalidParameter)
}

func TestGeometry_CenterMapsBack(t *testing.T) {
	p := types.GeoPoint{Lat: 37.5665, Lng: 126.9780}
	for _, a := range NewAdapters(seoul) {
		c, err := a.ToCell(p, resFor(a))
		require.NoError(t, err)

		center, err := a.(Geometry).Center(c)
		require.NoError(t, err)

		back, err := a.ToCell(center, resFor(a))
		require.NoError(t, err)
		assert.Equal(t, c, back, a.Name())
	}
}

func TestCellAreaKm2(t *testing.T) {
	square := NewSquareAdapter(seoul)
	area, err := CellAreaKm2(square, types.SquareCell(10, 10, squareRes))
	require.NoError(t, err)
	// 0.01° is ~1.11 km of latitude and ~0.88 km of longitude at 37.5°N
	assert.InDelta(t, 0.98, area, 0.05)

	hex := NewHexAdapter(seoul)
	c, err := hex.ToCell(types.GeoPoint{Lat: 37.5665, Lng: 126.9780}, hexRes)
	require.NoError(t, err)
	area, err = CellAreaKm2(hex, c)
	require.NoError(t, err)
	// H3 resolution 8 averages ~0.737 km²
	assert.InDelta(t, 0.74, area, 0.15)
}

func TestCover_RangeBox(t *testing.T) {
	box := types.Bounds{MinLat: 37.495, MinLng: 127.025, MaxLat: 37.505, MaxLng: 127.035}
	square := NewSquareAdapter(seoul)

	cells, err := Cover(square, box, squareRes)
	require.NoError(t, err)
	// The box straddles one grid line on each axis
	assert.Len(t, cells, 4)
	assert.True(t, slices.IsSortedFunc(cells, types.CellID.Compare))

	hex := NewHexAdapter(seoul)
	hexCells, err := Cover(hex, box, hexRes)
	require.NoError(t, err)
	assert.NotEmpty(t, hexCells)
	assert.True(t, slices.IsSortedFunc(hexCells, types.CellID.Compare))

	_, err = Cover(square, types.Bounds{MinLat: 1, MinLng: 1, MaxLat: 0, MaxLng: 0}, squareRes)
	assert.ErrorIs(t, err, gberr.ErrInvalidParameter)
}

func TestCover_SkipsOutsideRunBounds(t *testing.T) {
	box := types.Bounds{MinLat: 37.695, MinLng: 127.095, MaxLat: 37.75, MaxLng: 127.15}
	cells, err := Cover(NewSquareAdapter(seoul), box, squareRes)
	require.NoError(t, err)
	assert.Equal(t, []types.CellID{types.SquareCell(29, 29, squareRes)}, cells)

	outside := types.Bounds{MinLat: 38, MinLng: 128, MaxLat: 38.1, MaxLng: 128.1}
	for _, a := range NewAdapters(seoul) {
		cells, err := Cover(a, outside, resFor(a))
		require.NoError(t, err)
		assert.Empty(t, cells, a.Name())
	}
}

// Every point inside the box must land in a covered cell, at any resolution.
func TestCover_ContainsEveryPointInBox(t *testing.T) {
	box := types.Bounds{MinLat: 37.495, MinLng: 127.025, MaxLat: 37.505, MaxLng: 127.035}
	rng := rand.New(rand.NewSource(17))
	points := make([]types.GeoPoint, 20000)
	for i := range points {
		points[i] = types.GeoPoint{
			Lat: box.MinLat + rng.Float64()*box.Height(),
			Lng: box.MinLng + rng.Float64()*box.Width(),
		}
	}
	// Corners and edges are part of the box
	points = append(points,
		types.GeoPoint{Lat: box.MinLat, Lng: box.MinLng},
		types.GeoPoint{Lat: box.MaxLat, Lng: box.MaxLng},
		types.GeoPoint{Lat: box.MinLat, Lng: box.MaxLng},
		types.GeoPoint{Lat: box.MaxLat, Lng: (box.MinLng + box.MaxLng) / 2},
	)

	cases := []struct {
		adapter Adapter
		res     types.Resolution
	}{
		{NewHexAdapter(seoul), 8},
		{NewHexAdapter(seoul), 12},
		{NewSquareAdapter(seoul), 0.005},
		{NewSquareAdapter(seoul), 0.0002},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s/%s", tc.adapter.Name(), tc.res), func(t *testing.T) {
			cells, err := Cover(tc.adapter, box, tc.res)
			require.NoError(t, err)
			covered := make(map[types.CellID]bool, len(cells))
			for _, c := range cells {
				covered[c] = true
			}

			missed := 0
			for _, p := range points {
				c, err := tc.adapter.ToCell(p, tc.res)
				require.NoError(t, err)
				if !covered[c] {
					missed++
				}
			}
			assert.Zero(t, missed, "%d of %d in-box points fall outside the cover", missed, len(points))
		})
	}
}

func TestSquare_CoverBoxIsExact(t *testing.T) {
	a := NewSquareAdapter(seoul)
	box := types.Bounds{MinLat: 37.5001, MinLng: 127.0001, MaxLat: 37.5029, MaxLng: 127.0049}

	cells, err := a.CoverBox(box, 0.001)
	require.NoError(t, err)
	// 5 columns by 3 rows of 0.001 degree cells
	assert.Len(t, cells, 15)
}

func TestCoverCircle(t *testing.T) {
	center := types.GeoPoint{Lat: 37.5665, Lng: 126.9780}
	for _, a := range NewAdapters(seoul) {
		cov, err := CoverCircle(a, center, 1.0, resFor(a))
		require.NoError(t, err)
		assert.Greater(t, cov.Cells, 1, a.Name())
		assert.InDelta(t, math.Pi, cov.CircleKm2, 1e-9)
		assert.GreaterOrEqual(t, cov.CoveredKm2, cov.CircleKm2, a.Name())
		assert.Greater(t, cov.Efficiency, 0.0)
		assert.LessOrEqual(t, cov.Efficiency, 1.0)
	}

	_, err := CoverCircle(NewHexAdapter(seoul), center, 0, hexRes)
	assert.ErrorIs(t, err, gberr.ErrInvalidParameter)
}

func TestCoverCircle_FineResolution(t *testing.T) {
	center := types.GeoPoint{Lat: 37.5665, Lng: 126.9780}
	coarse, err := CoverCircle(NewHexAdapter(seoul), center, 0.2, 9)
	require.NoError(t, err)
	fine, err := CoverCircle(NewHexAdapter(seoul), center, 0.2, 12)
	require.NoError(t, err)

	// Finer cells hug the circle more tightly
	assert.Greater(t, fine.Cells, coarse.Cells)
	assert.GreaterOrEqual(t, fine.Efficiency, coarse.Efficiency)
	assert.GreaterOrEqual(t, fine.CoveredKm2, fine.CircleKm2)
}

func TestProperty_AdapterInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	latGen := gen.Float64Range(seoul.MinLat, seoul.MaxLat)
	lngGen := gen.Float64Range(seoul.MinLng, seoul.MaxLng)

	for _, a := range NewAdapters(seoul) {
		a := a
		res := resFor(a)

		properties.Property(a.Name()+": ToCell is idempotent", prop.ForAll(
			func(lat, lng float64) bool {
				p := types.GeoPoint{Lat: lat, Lng: lng}
				first, err1 := a.ToCell(p, res)
				second, err2 := a.ToCell(p, res)
				return err1 == nil && err2 == nil && first == second
			},
			latGen, lngGen,
		))

		properties.Property(a.Name()+": ring-1 adjacency is symmetric", prop.ForAll(
			func(lat, lng float64) bool {
				origin, err := a.ToCell(types.GeoPoint{Lat: lat, Lng: lng}, res)
				if err != nil {
					return false
				}
				ring, err := a.Neighbors(origin, 1)
				if err != nil {
					return false
				}
				for _, b := range ring {
					back, err := a.Neighbors(b, 1)
					if err != nil || !slices.Contains(back, origin) {
						return false
					}
				}
				return true
			},
			latGen, lngGen,
		))

		properties.Property(a.Name()+": edge points map to one cell without error", prop.ForAll(
			func(f float64, edge int) bool {
				var p types.GeoPoint
				switch edge {
				case 0:
					p = types.GeoPoint{Lat: seoul.MinLat, Lng: seoul.MinLng + f*seoul.Width()}
				case 1:
					p = types.GeoPoint{Lat: seoul.MaxLat, Lng: seoul.MinLng + f*seoul.Width()}
				case 2:
					p = types.GeoPoint{Lat: seoul.MinLat + f*seoul.Height(), Lng: seoul.MinLng}
				default:
					p = types.GeoPoint{Lat: seoul.MinLat + f*seoul.Height(), Lng: seoul.MaxLng}
				}
				c, err := a.ToCell(p, res)
				if err != nil || c.IsZero() {
					return false
				}
				again, err := a.ToCell(p, res)
				return err == nil && again == c
			},
			gen.Float64Range(0, 1), gen.IntRange(0, 3),
		))
	}

	properties.TestingRun(t)
}
