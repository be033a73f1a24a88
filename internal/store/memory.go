package store

import (
	"context"
	"sync"
	"time"

	gberr "github.com/arkilian/gridbench/internal/errors"
	"github.com/arkilian/gridbench/pkg/types"
)

// MemoryStore keeps records in a map keyed by id plus an inverted index from
// cell to ids. The index is maintained on every mutation so QueryByCell never
// scans the table. Ids are never reused: once deleted, an id stays retired.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[int64]types.LocationRecord
	byCell  map[types.CellID]map[int64]struct{}
	retired map[int64]struct{}
	closed  bool
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[int64]types.LocationRecord),
		byCell:  make(map[types.CellID]map[int64]struct{}),
		retired: make(map[int64]struct{}),
		now:     time.Now,
	}
}

// CreateMany inserts records. A batch containing an id that is live, retired,
// or repeated is rejected as a whole.
func (m *MemoryStore) CreateMany(ctx context.Context, records []types.LocationRecord) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, errClosed
	}

	batch := make(map[int64]struct{}, len(records))
	for _, rec := range records {
		if rec.Cell.IsZero() {
			return 0, gberr.InvalidParameter("record %d has no cell", rec.ID)
		}
		if _, ok := m.byID[rec.ID]; ok {
			return 0, gberr.InvalidParameter("record id %d already exists", rec.ID)
		}
		if _, ok := m.retired[rec.ID]; ok {
			return 0, gberr.InvalidParameter("record id %d was deleted and cannot be reused", rec.ID)
		}
		if _, ok := batch[rec.ID]; ok {
			return 0, gberr.InvalidParameter("record id %d repeated in batch", rec.ID)
		}
		batch[rec.ID] = struct{}{}
	}

	now := m.now().UTC()
	for _, rec := range records {
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		rec.UpdatedAt = now
		m.byID[rec.ID] = rec
		m.index(rec)
	}
	return len(records), nil
}

// GetByID returns the record with id.
func (m *MemoryStore) GetByID(ctx context.Context, id int64) (types.LocationRecord, error) {
	if err := ctx.Err(); err != nil {
		return types.LocationRecord{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return types.LocationRecord{}, errClosed
	}

	rec, ok := m.byID[id]
	if !ok {
		return types.LocationRecord{}, gberr.NotFound("record %d not found", id)
	}
	return rec, nil
}

// QueryByCell returns the records indexed under cell.
func (m *MemoryStore) QueryByCell(ctx context.Context, cell types.CellID) ([]types.LocationRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errClosed
	}

	ids := m.byCell[cell]
	out := make([]types.LocationRecord, 0, len(ids))
	for id := range ids {
		out = append(out, m.byID[id])
	}
	sortRecords(out)
	return out, nil
}

// QueryByCellRange returns records under any cell of r, filtered by r.Within.
func (m *MemoryStore) QueryByCellRange(ctx context.Context, r CellRange) ([]types.LocationRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errClosed
	}

	var out []types.LocationRecord
	for c := range cellSet(r.Cells) {
		for id := range m.byCell[c] {
			rec := m.byID[id]
			if r.Within != nil && !r.Within.Contains(rec.Point) {
				continue
			}
			out = append(out, rec)
		}
	}
	sortRecords(out)
	return out, nil
}

// UpdateValue scales the value of each existing id.
func (m *MemoryStore) UpdateValue(ctx context.Context, ids []int64, factor float64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, errClosed
	}

	now := m.now().UTC()
	affected := 0
	for _, id := range uniqueIDs(ids) {
		rec, ok := m.byID[id]
		if !ok {
			continue
		}
		rec.Value *= factor
		rec.UpdatedAt = now
		m.byID[id] = rec
		affected++
	}
	return affected, nil
}

// DeleteMany removes the records with the given ids and retires the ids.
func (m *MemoryStore) DeleteMany(ctx context.Context, ids []int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, errClosed
	}

	affected := 0
	for _, id := range uniqueIDs(ids) {
		rec, ok := m.byID[id]
		if !ok {
			continue
		}
		delete(m.byID, id)
		m.unindex(rec)
		m.retired[id] = struct{}{}
		affected++
	}
	return affected, nil
}

// AggregateByCell computes per-cell statistics from the inverted index.
func (m *MemoryStore) AggregateByCell(ctx context.Context, opts AggregateOptions) ([]types.CellAggregate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errClosed
	}

	aggs := make([]types.CellAggregate, 0, len(m.byCell))
	for cell, ids := range m.byCell {
		agg := types.CellAggregate{Cell: cell}
		categories := make(map[string]struct{})
		for id := range ids {
			rec := m.byID[id]
			if agg.Count == 0 || rec.Value < agg.Min {
				agg.Min = rec.Value
			}
			if agg.Count == 0 || rec.Value > agg.Max {
				agg.Max = rec.Value
			}
			agg.Count++
			agg.Sum += rec.Value
			categories[rec.Category] = struct{}{}
		}
		agg.DistinctCategories = int64(len(categories))
		agg.Avg = agg.Sum / float64(agg.Count)
		aggs = append(aggs, agg)
	}
	return applyAggregateOptions(aggs, opts), nil
}

// Count returns the number of live records.
func (m *MemoryStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, errClosed
	}
	return len(m.byID), nil
}

// Close releases the tables. Later calls fail with a connectivity error.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.byID = nil
	m.byCell = nil
	return nil
}

// index adds rec to the inverted index (must be called with lock held).
func (m *MemoryStore) index(rec types.LocationRecord) {
	ids, ok := m.byCell[rec.Cell]
	if !ok {
		ids = make(map[int64]struct{})
		m.byCell[rec.Cell] = ids
	}
	ids[rec.ID] = struct{}{}
}

// unindex removes rec from the inverted index (must be called with lock held).
func (m *MemoryStore) unindex(rec types.LocationRecord) {
	ids := m.byCell[rec.Cell]
	delete(ids, rec.ID)
	if len(ids) == 0 {
		delete(m.byCell, rec.Cell)
	}
}

var errClosed = gberr.StoreConnectivity("store is closed", nil)

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
