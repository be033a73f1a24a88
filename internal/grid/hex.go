package grid

import (
	"math"

	"github.com/uber/h3-go/v3"

	gberr "github.com/arkilian/gridbench/internal/errors"
	"github.com/arkilian/gridbench/pkg/types"
)

const (
	minHexRes = 0
	maxHexRes = 15
)

// HexAdapter indexes points with H3. All hexagon math is delegated to h3-go.
// Points outside bounds are rejected so both adapters drop the same points.
type HexAdapter struct {
	bounds types.Bounds
}

// NewHexAdapter creates a hex adapter restricted to bounds.
func NewHexAdapter(bounds types.Bounds) *HexAdapter {
	return &HexAdapter{bounds: bounds}
}

func (a *HexAdapter) Name() string             { return string(types.StrategyHex) }
func (a *HexAdapter) Strategy() types.Strategy { return types.StrategyHex }

// ToCell returns the H3 cell containing p.
func (a *HexAdapter) ToCell(p types.GeoPoint, res types.Resolution) (types.CellID, error) {
	r, err := hexResolution(res)
	if err != nil {
		return types.CellID{}, err
	}
	if err := p.Validate(); err != nil {
		return types.CellID{}, gberr.InvalidParameterCause("invalid point", err)
	}
	if !a.bounds.Contains(p) {
		return types.CellID{}, gberr.OutOfBounds("point %v outside %v", p, a.bounds)
	}

	idx := h3.FromGeo(h3.GeoCoord{Latitude: p.Lat, Longitude: p.Lng}, r)
	return types.HexCell(uint64(idx), r), nil
}

// Neighbors returns the k-ring around c.
func (a *HexAdapter) Neighbors(c types.CellID, ringSize int) ([]types.CellID, error) {
	if err := a.checkCell(c); err != nil {
		return nil, err
	}
	if ringSize < 0 {
		return nil, gberr.InvalidParameter("ring size must be non-negative, got %d", ringSize)
	}

	ring := h3.KRing(h3.H3Index(c.Token), ringSize)
	cells := make([]types.CellID, 0, len(ring))
	for _, idx := range ring {
		// KRing leaves zero slots around pentagons
		if uint64(idx) == 0 {
			continue
		}
		cells = append(cells, types.HexCell(uint64(idx), c.Res.Int()))
	}
	return sortCells(cells), nil
}

// Parent returns the ancestor of c at the coarser resolution.
func (a *HexAdapter) Parent(c types.CellID, coarser types.Resolution) (types.CellID, error) {
	if err := a.checkCell(c); err != nil {
		return types.CellID{}, err
	}
	r, err := hexResolution(coarser)
	if err != nil {
		return types.CellID{}, err
	}
	if r > c.Res.Int() {
		return types.CellID{}, gberr.InvalidParameter("parent resolution %d is finer than cell resolution %s", r, c.Res)
	}

	parent := h3.ToParent(h3.H3Index(c.Token), r)
	return types.HexCell(uint64(parent), r), nil
}

// Center returns the centroid of c.
func (a *HexAdapter) Center(c types.CellID) (types.GeoPoint, error) {
	if err := a.checkCell(c); err != nil {
		return types.GeoPoint{}, err
	}
	g := h3.ToGeo(h3.H3Index(c.Token))
	return types.GeoPoint{Lat: g.Latitude, Lng: g.Longitude}, nil
}

// Boundary returns the vertices of c.
func (a *HexAdapter) Boundary(c types.CellID) ([]types.GeoPoint, error) {
	if err := a.checkCell(c); err != nil {
		return nil, err
	}
	boundary := h3.ToGeoBoundary(h3.H3Index(c.Token))
	out := make([]types.GeoPoint, len(boundary))
	for i, g := range boundary {
		out[i] = types.GeoPoint{Lat: g.Latitude, Lng: g.Longitude}
	}
	return out, nil
}

// CoverBox returns the cells whose centers lie in the clipped box plus every
// cell crossed by its perimeter and the ring around those. The margin keeps
// cells that only clip a corner of the box.
func (a *HexAdapter) CoverBox(box types.Bounds, res types.Resolution) ([]types.CellID, error) {
	r, err := hexResolution(res)
	if err != nil {
		return nil, err
	}
	clip := box.Intersect(a.bounds)
	if clip.MinLat > clip.MaxLat || clip.MinLng > clip.MaxLng {
		return nil, nil
	}

	seen := make(map[h3.H3Index]struct{})
	if clip.Width() > 0 && clip.Height() > 0 {
		fence := h3.GeoPolygon{Geofence: []h3.GeoCoord{
			{Latitude: clip.MinLat, Longitude: clip.MinLng},
			{Latitude: clip.MinLat, Longitude: clip.MaxLng},
			{Latitude: clip.MaxLat, Longitude: clip.MaxLng},
			{Latitude: clip.MaxLat, Longitude: clip.MinLng},
		}}
		for _, idx := range h3.Polyfill(fence, r) {
			seen[idx] = struct{}{}
		}
	}

	// Half an edge in degrees of latitude, the short axis
	step := h3.EdgeLengthKm(r) / kmPerDegree / 2
	perimeter := make(map[h3.H3Index]struct{})
	walk := func(from, to types.GeoPoint) {
		n := int(math.Ceil(math.Max(math.Abs(to.Lat-from.Lat), math.Abs(to.Lng-from.Lng))/step)) + 1
		for i := 0; i <= n; i++ {
			f := float64(i) / float64(n)
			p := h3.GeoCoord{
				Latitude:  from.Lat + f*(to.Lat-from.Lat),
				Longitude: from.Lng + f*(to.Lng-from.Lng),
			}
			perimeter[h3.FromGeo(p, r)] = struct{}{}
		}
	}
	sw := types.GeoPoint{Lat: clip.MinLat, Lng: clip.MinLng}
	se := types.GeoPoint{Lat: clip.MinLat, Lng: clip.MaxLng}
	ne := types.GeoPoint{Lat: clip.MaxLat, Lng: clip.MaxLng}
	nw := types.GeoPoint{Lat: clip.MaxLat, Lng: clip.MinLng}
	walk(sw, se)
	walk(se, ne)
	walk(ne, nw)
	walk(nw, sw)

	for idx := range perimeter {
		for _, n := range h3.KRing(idx, 1) {
			if uint64(n) != 0 {
				seen[n] = struct{}{}
			}
		}
	}

	cells := make([]types.CellID, 0, len(seen))
	for idx := range seen {
		cells = append(cells, types.HexCell(uint64(idx), r))
	}
	return cells, nil
}

// ParseHexCell rebuilds a cell from its canonical H3 string.
func ParseHexCell(s string) (types.CellID, error) {
	idx := h3.FromString(s)
	if !h3.IsValid(idx) {
		return types.CellID{}, gberr.InvalidParameter("invalid h3 index %q", s)
	}
	return types.HexCell(uint64(idx), h3.Resolution(idx)), nil
}

func (a *HexAdapter) checkCell(c types.CellID) error {
	if c.Strategy != types.StrategyHex {
		return gberr.InvalidParameter("hex adapter cannot handle %s cell %s", c.Strategy, c)
	}
	if !h3.IsValid(h3.H3Index(c.Token)) {
		return gberr.InvalidParameter("invalid h3 index %s", c)
	}
	return nil
}

func hexResolution(res types.Resolution) (int, error) {
	if !res.IsIntegral() || res < minHexRes || res > maxHexRes {
		return 0, gberr.InvalidParameter("hex resolution must be an integer in [%d, %d], got %s", minHexRes, maxHexRes, res)
	}
	return res.Int(), nil
}
