package store

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/arkilian/gridbench/pkg/types"
)

// layout describes how one strategy's records map onto its table.
type layout struct {
	strategy types.Strategy
	table    string
	view     string
	columns  []string

	// viewKey selects the cell columns from the view; viewOrder breaks count ties
	viewKey   []string
	viewOrder []string
}

var hexLayout = layout{
	strategy:  types.StrategyHex,
	table:     HexTable,
	view:      HexStatsView,
	columns:   []string{"id", "name", "lat", "lng", "h3_index", "resolution", "category", "value", "created_at", "updated_at"},
	viewKey:   []string{"h3_index", "resolution"},
	viewOrder: []string{"resolution", "h3_index"},
}

var squareLayout = layout{
	strategy:  types.StrategySquare,
	table:     SquareTable,
	view:      SquareStatsView,
	columns:   []string{"id", "name", "lat", "lng", "grid_x", "grid_y", "cell_size", "category", "value", "created_at", "updated_at"},
	viewKey:   []string{"grid_x", "grid_y", "cell_size"},
	viewOrder: []string{"cell_size", "grid_x", "grid_y"},
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// values returns the insert arguments in column order.
func (l layout) values(rec types.LocationRecord, created, updated time.Time) []interface{} {
	if l.strategy == types.StrategyHex {
		return []interface{}{
			rec.ID, rec.Name, rec.Point.Lat, rec.Point.Lng,
			rec.Cell.Key(), rec.Cell.Res.Int(),
			rec.Category, rec.Value, created, updated,
		}
	}
	return []interface{}{
		rec.ID, rec.Name, rec.Point.Lat, rec.Point.Lng,
		rec.Cell.X, rec.Cell.Y, float64(rec.Cell.Res),
		rec.Category, rec.Value, created, updated,
	}
}

// scan reads one row selected with l.columns.
func (l layout) scan(row rowScanner) (types.LocationRecord, error) {
	var rec types.LocationRecord
	if l.strategy == types.StrategyHex {
		var key string
		var res int
		if err := row.Scan(&rec.ID, &rec.Name, &rec.Point.Lat, &rec.Point.Lng,
			&key, &res, &rec.Category, &rec.Value, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return rec, err
		}
		token, err := parseHexKey(key)
		if err != nil {
			return rec, err
		}
		rec.Cell = types.HexCell(token, res)
	} else {
		var x, y int64
		var size float64
		if err := row.Scan(&rec.ID, &rec.Name, &rec.Point.Lat, &rec.Point.Lng,
			&x, &y, &size, &rec.Category, &rec.Value, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return rec, err
		}
		rec.Cell = types.SquareCell(x, y, types.Resolution(size))
	}
	rec.Res = rec.Cell.Res
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, nil
}

// scanAggregate reads one view row selected with viewKey plus the statistics columns.
func (l layout) scanAggregate(row rowScanner) (types.CellAggregate, error) {
	var agg types.CellAggregate
	stats := []interface{}{&agg.Count, &agg.DistinctCategories, &agg.Sum, &agg.Avg, &agg.Min, &agg.Max}

	if l.strategy == types.StrategyHex {
		var key string
		var res int
		if err := row.Scan(append([]interface{}{&key, &res}, stats...)...); err != nil {
			return agg, err
		}
		token, err := parseHexKey(key)
		if err != nil {
			return agg, err
		}
		agg.Cell = types.HexCell(token, res)
		return agg, nil
	}

	var x, y int64
	var size float64
	if err := row.Scan(append([]interface{}{&x, &y, &size}, stats...)...); err != nil {
		return agg, err
	}
	agg.Cell = types.SquareCell(x, y, types.Resolution(size))
	return agg, nil
}

// cellPredicate returns the WHERE clause selecting one cell.
func (l layout) cellPredicate(d Dialect, cell types.CellID) (string, []interface{}) {
	if l.strategy == types.StrategyHex {
		return "h3_index = " + d.Placeholder(1), []interface{}{cell.Key()}
	}
	where := fmt.Sprintf("grid_x = %s AND grid_y = %s AND cell_size = %s",
		d.Placeholder(1), d.Placeholder(2), d.Placeholder(3))
	return where, []interface{}{cell.X, cell.Y, float64(cell.Res)}
}

type boundQuery struct {
	sql  string
	args []interface{}
}

// rangeQueries builds the statements fetching a cell set. Each record is
// returned by at most one statement.
func (l layout) rangeQueries(d Dialect, r CellRange) []boundQuery {
	cells := make([]types.CellID, 0, len(r.Cells))
	for c := range cellSet(r.Cells) {
		cells = append(cells, c)
	}
	slices.SortFunc(cells, types.CellID.Compare)

	cols := strings.Join(l.columns, ", ")
	var out []boundQuery

	if l.strategy == types.StrategyHex {
		for start := 0; start < len(cells); start += maxParams {
			chunk := cells[start:min(start+maxParams, len(cells))]
			args := make([]interface{}, 0, len(chunk)+4)
			for _, c := range chunk {
				args = append(args, c.Key())
			}
			where := fmt.Sprintf("h3_index IN (%s)", d.Placeholders(1, len(chunk)))
			where, args = withinClause(d, where, args, r.Within)
			out = append(out, boundQuery{
				sql:  fmt.Sprintf("SELECT %s FROM %s WHERE %s", cols, l.table, where),
				args: args,
			})
		}
		return out
	}

	// One rectangle scan per cell size over the (grid_x, grid_y) index
	bySize := make(map[types.Resolution][]types.CellID)
	var sizes []types.Resolution
	for _, c := range cells {
		if _, ok := bySize[c.Res]; !ok {
			sizes = append(sizes, c.Res)
		}
		bySize[c.Res] = append(bySize[c.Res], c)
	}
	for _, size := range sizes {
		minX, minY := int64(math.MaxInt64), int64(math.MaxInt64)
		maxX, maxY := int64(math.MinInt64), int64(math.MinInt64)
		for _, c := range bySize[size] {
			minX, maxX = min(minX, c.X), max(maxX, c.X)
			minY, maxY = min(minY, c.Y), max(maxY, c.Y)
		}
		where := fmt.Sprintf("grid_x BETWEEN %s AND %s AND grid_y BETWEEN %s AND %s AND cell_size = %s",
			d.Placeholder(1), d.Placeholder(2), d.Placeholder(3), d.Placeholder(4), d.Placeholder(5))
		args := []interface{}{minX, maxX, minY, maxY, float64(size)}
		where, args = withinClause(d, where, args, r.Within)
		out = append(out, boundQuery{
			sql:  fmt.Sprintf("SELECT %s FROM %s WHERE %s", cols, l.table, where),
			args: args,
		})
	}
	return out
}

// withinClause appends a lat/lng box filter when within is set.
func withinClause(d Dialect, where string, args []interface{}, within *types.Bounds) (string, []interface{}) {
	if within == nil {
		return where, args
	}
	n := len(args)
	where += fmt.Sprintf(" AND lat BETWEEN %s AND %s AND lng BETWEEN %s AND %s",
		d.Placeholder(n+1), d.Placeholder(n+2), d.Placeholder(n+3), d.Placeholder(n+4))
	return where, append(args, within.MinLat, within.MaxLat, within.MinLng, within.MaxLng)
}
