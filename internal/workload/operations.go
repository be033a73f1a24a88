package workload

import (
	"context"
	"errors"

	gberr "github.com/arkilian/gridbench/internal/errors"
	"github.com/arkilian/gridbench/internal/grid"
	"github.com/arkilian/gridbench/internal/store"
	"github.com/arkilian/gridbench/pkg/types"
)

// operation is the body of one phase for one target. run is timed and
// returns the result count; cleanup, when set, runs untimed after a
// successful run.
type operation struct {
	run     func(ctx context.Context, slot int) (int, error)
	cleanup func(ctx context.Context, slot int) error
}

func (r *Runner) operation(p Phase, t Target) (operation, error) {
	in := r.inputs
	opts := &r.opts

	switch p {
	case PhaseIndex:
		return operation{run: func(_ context.Context, _ int) (int, error) {
			indexed := 0
			for _, pt := range in.indexPoints {
				if _, err := t.Adapter.ToCell(pt, t.Res); err != nil {
					if errors.Is(err, gberr.ErrOutOfBounds) {
						continue
					}
					return indexed, err
				}
				indexed++
			}
			return indexed, nil
		}}, nil

	case PhaseInsert:
		batches := make([][]types.LocationRecord, opts.slots())
		for slot := range batches {
			recs, err := in.insertRecords(opts, t, slot)
			if err != nil {
				return operation{}, err
			}
			batches[slot] = recs
		}
		return operation{
			run: func(ctx context.Context, slot int) (int, error) {
				return t.Store.CreateMany(ctx, batches[slot])
			},
			cleanup: func(ctx context.Context, slot int) error {
				ids := make([]int64, len(batches[slot]))
				for i, rec := range batches[slot] {
					ids[i] = rec.ID
				}
				_, err := t.Store.DeleteMany(ctx, ids)
				return err
			},
		}, nil

	case PhasePointQuery:
		return operation{run: func(ctx context.Context, _ int) (int, error) {
			found := 0
			for _, pt := range in.pointQueries {
				cell, err := t.Adapter.ToCell(pt, t.Res)
				if err != nil {
					return found, err
				}
				recs, err := t.Store.QueryByCell(ctx, cell)
				if err != nil {
					return found, err
				}
				found += len(recs)
			}
			return found, nil
		}}, nil

	case PhaseRangeQuery:
		return operation{run: func(ctx context.Context, _ int) (int, error) {
			found := 0
			for i := range opts.RangeBoxes {
				box := opts.RangeBoxes[i]
				cells, err := grid.Cover(t.Adapter, box, t.Res)
				if err != nil {
					return found, err
				}
				recs, err := t.Store.QueryByCellRange(ctx, store.CellRange{Cells: cells, Within: &box})
				if err != nil {
					return found, err
				}
				found += len(recs)
			}
			return found, nil
		}}, nil

	case PhaseNeighborQuery:
		return operation{run: func(ctx context.Context, _ int) (int, error) {
			found := 0
			for _, pt := range in.neighborPoints {
				cell, err := t.Adapter.ToCell(pt, t.Res)
				if err != nil {
					return found, err
				}
				ring, err := t.Adapter.Neighbors(cell, opts.RingSize)
				if err != nil {
					return found, err
				}
				recs, err := t.Store.QueryByCellRange(ctx, store.CellRange{Cells: ring})
				if err != nil {
					return found, err
				}
				found += len(recs)
			}
			return found, nil
		}}, nil

	case PhaseAggregate:
		return operation{run: func(ctx context.Context, _ int) (int, error) {
			aggs, err := t.Store.AggregateByCell(ctx, opts.Aggregate)
			if err != nil {
				return 0, err
			}
			// Parent rollup is part of the measured work; the count is the parent cells touched
			parents := make(map[types.CellID]int64, len(aggs))
			for _, agg := range aggs {
				parent, err := t.Adapter.Parent(agg.Cell, t.ParentRes)
				if err != nil {
					return 0, err
				}
				parents[parent] += agg.Count
			}
			return len(parents), nil
		}}, nil

	case PhaseUpdate:
		return operation{run: func(ctx context.Context, slot int) (int, error) {
			return t.Store.UpdateValue(ctx, in.updateIDs[slot], opts.UpdateFactor)
		}}, nil

	case PhaseDelete:
		return operation{run: func(ctx context.Context, slot int) (int, error) {
			return t.Store.DeleteMany(ctx, in.deleteIDs[slot])
		}}, nil

	case PhaseCoverage:
		var last grid.Coverage
		return operation{
			run: func(_ context.Context, _ int) (int, error) {
				cov, err := grid.CoverCircle(t.Adapter, opts.CoverageCenter, opts.CoverageRadiusKm, t.Res)
				if err != nil {
					return 0, err
				}
				last = cov
				return cov.Cells, nil
			},
			cleanup: func(_ context.Context, slot int) error {
				if slot == opts.Trials {
					r.result.Coverage = append(r.result.Coverage, last)
				}
				return nil
			},
		}, nil
	}

	return operation{}, gberr.InvalidParameter("unknown workload phase %q", p)
}
