package grid

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"

	gberr "github.com/arkilian/gridbench/internal/errors"
	"github.com/arkilian/gridbench/pkg/types"
)

// kmPerDegree is the length of one degree of latitude.
const kmPerDegree = 111.32

// Cover returns every cell at res that intersects box, clipped to the
// adapter's extent. The result is sorted and unique and may include a
// margin of adjacent cells, so callers filter records by the box itself.
func Cover(a Adapter, box types.Bounds, res types.Resolution) ([]types.CellID, error) {
	if err := box.Validate(); err != nil {
		return nil, gberr.InvalidParameterCause("invalid cover box", err)
	}
	cells, err := a.CoverBox(box, res)
	if err != nil {
		return nil, err
	}
	return sortCells(cells), nil
}

// Coverage describes how a strategy tiles a circle.
type Coverage struct {
	Adapter      string  `json:"adapter"`
	RadiusKm     float64 `json:"radius_km"`
	Cells        int     `json:"cells"`
	CellAreaKm2  float64 `json:"cell_area_km2"`
	CoveredKm2   float64 `json:"covered_km2"`
	CircleKm2    float64 `json:"circle_km2"`
	Efficiency   float64 `json:"efficiency"`
	OverCoverage float64 `json:"over_coverage"`
}

// CoverCircle finds the cells needed to cover the circle of radiusKm around
// center: every cell whose shape touches the circle. Cell areas are computed
// on the sphere from each cell's boundary.
func CoverCircle(a Adapter, center types.GeoPoint, radiusKm float64, res types.Resolution) (Coverage, error) {
	geom, ok := a.(Geometry)
	if !ok {
		return Coverage{}, gberr.InvalidParameter("adapter %s does not describe cell geometry", a.Name())
	}
	if !(radiusKm > 0) {
		return Coverage{}, gberr.InvalidParameter("coverage radius must be positive, got %v", radiusKm)
	}
	if err := center.Validate(); err != nil {
		return Coverage{}, gberr.InvalidParameterCause("invalid coverage center", err)
	}

	cosLat := math.Cos(center.Lat * math.Pi / 180)
	latDelta := radiusKm / kmPerDegree * 1.01
	lngDelta := radiusKm / (kmPerDegree * cosLat) * 1.01
	box := types.Bounds{
		MinLat: center.Lat - latDelta,
		MinLng: center.Lng - lngDelta,
		MaxLat: center.Lat + latDelta,
		MaxLng: center.Lng + lngDelta,
	}
	candidates, err := a.CoverBox(box, res)
	if err != nil {
		return Coverage{}, err
	}

	// Cell shapes are tested in a local plane in km centered on the circle
	project := func(p types.GeoPoint) orb.Point {
		return orb.Point{(p.Lng - center.Lng) * kmPerDegree * cosLat, (p.Lat - center.Lat) * kmPerDegree}
	}
	origin := orb.Point{0, 0}

	var seen []types.CellID
	for _, c := range candidates {
		boundary, err := geom.Boundary(c)
		if err != nil {
			return Coverage{}, err
		}
		ring := make(orb.Ring, 0, len(boundary)+1)
		for _, p := range boundary {
			ring = append(ring, project(p))
		}
		if len(ring) == 0 {
			continue
		}
		ring = append(ring, ring[0])
		if planar.RingContains(ring, origin) || planar.DistanceFrom(orb.LineString(ring), origin) <= radiusKm {
			seen = append(seen, c)
		}
	}

	cov := Coverage{
		Adapter:   a.Name(),
		RadiusKm:  radiusKm,
		Cells:     len(seen),
		CircleKm2: math.Pi * radiusKm * radiusKm,
	}
	for _, c := range seen {
		area, err := CellAreaKm2(geom, c)
		if err != nil {
			return Coverage{}, err
		}
		cov.CoveredKm2 += area
	}
	if cov.Cells > 0 {
		cov.CellAreaKm2 = cov.CoveredKm2 / float64(cov.Cells)
	}
	if cov.CoveredKm2 > 0 {
		cov.Efficiency = cov.CircleKm2 / cov.CoveredKm2
		cov.OverCoverage = cov.CoveredKm2/cov.CircleKm2 - 1
	}
	return cov, nil
}

// CellAreaKm2 returns the spherical area of c.
func CellAreaKm2(g Geometry, c types.CellID) (float64, error) {
	boundary, err := g.Boundary(c)
	if err != nil {
		return 0, err
	}
	if len(boundary) < 3 {
		return 0, nil
	}
	ring := make(orb.Ring, 0, len(boundary)+1)
	for _, p := range boundary {
		ring = append(ring, p.Orb())
	}
	ring = append(ring, ring[0])
	return math.Abs(geo.Area(orb.Polygon{ring})) / 1e6, nil
}
