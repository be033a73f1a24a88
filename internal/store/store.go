// Package store provides the backing stores the workload runner executes against.
//
// Two implementations exist: an in-memory table with an inverted cell index,
// and a relational table reached through database/sql. Both return records
// sorted by id and aggregates sorted by count descending, so results can be
// compared across implementations.
package store

import (
	"context"
	"slices"

	"github.com/arkilian/gridbench/pkg/types"
)

// Store is the capability set every backing store provides.
type Store interface {
	// CreateMany inserts records and returns how many were stored.
	CreateMany(ctx context.Context, records []types.LocationRecord) (int, error)

	// GetByID returns the record with id, or a NotFound error.
	GetByID(ctx context.Context, id int64) (types.LocationRecord, error)

	// QueryByCell returns every record indexed under cell.
	QueryByCell(ctx context.Context, cell types.CellID) ([]types.LocationRecord, error)

	// QueryByCellRange returns records indexed under any of r.Cells, optionally
	// restricted to points inside r.Within.
	QueryByCellRange(ctx context.Context, r CellRange) ([]types.LocationRecord, error)

	// UpdateValue multiplies value by factor for each id and refreshes updated_at.
	// It returns the number of records changed; unknown ids are not an error.
	UpdateValue(ctx context.Context, ids []int64, factor float64) (int, error)

	// DeleteMany removes the records with the given ids and returns how many existed.
	DeleteMany(ctx context.Context, ids []int64) (int, error)

	// AggregateByCell returns per-cell statistics.
	AggregateByCell(ctx context.Context, opts AggregateOptions) ([]types.CellAggregate, error)

	// Count returns the number of records held.
	Count(ctx context.Context) (int, error)

	// Close releases the store's resources.
	Close() error
}

// CellRange selects records by cell membership.
type CellRange struct {
	Cells []types.CellID

	// Within, when set, keeps only records whose point lies inside it
	Within *types.Bounds
}

// AggregateOptions filters and limits AggregateByCell results.
type AggregateOptions struct {
	// MinCount drops cells holding fewer records
	MinCount int

	// Limit caps the number of cells returned; 0 means no limit
	Limit int
}

func sortRecords(records []types.LocationRecord) {
	slices.SortFunc(records, func(a, b types.LocationRecord) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}

// sortAggregates orders by count descending, then by cell.
func sortAggregates(aggs []types.CellAggregate) {
	slices.SortFunc(aggs, func(a, b types.CellAggregate) int {
		switch {
		case a.Count > b.Count:
			return -1
		case a.Count < b.Count:
			return 1
		}
		return a.Cell.Compare(b.Cell)
	})
}

func applyAggregateOptions(aggs []types.CellAggregate, opts AggregateOptions) []types.CellAggregate {
	out := aggs[:0]
	for _, a := range aggs {
		if a.Count >= int64(opts.MinCount) {
			out = append(out, a)
		}
	}
	sortAggregates(out)
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}

// cellSet indexes a cell list for membership checks.
func cellSet(cells []types.CellID) map[types.CellID]struct{} {
	set := make(map[types.CellID]struct{}, len(cells))
	for _, c := range cells {
		set[c] = struct{}{}
	}
	return set
}
