package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gberr "github.com/arkilian/gridbench/internal/errors"
	"github.com/arkilian/gridbench/internal/dataset"
	"github.com/arkilian/gridbench/internal/grid"
	"github.com/arkilian/gridbench/internal/sampler"
	"github.com/arkilian/gridbench/pkg/types"
)

var testBounds = types.Bounds{MinLat: 37.4, MinLng: 126.8, MaxLat: 37.7, MaxLng: 127.1}

type storeFactory func(t *testing.T, strategy types.Strategy) Store

func memoryFactory(t *testing.T, _ types.Strategy) Store {
	s := NewMemoryStore()
	t.Cleanup(func() { s.Close() })
	return s
}

func sqliteFactory(t *testing.T, strategy types.Strategy) Store {
	dsn := "file:" + filepath.Join(t.TempDir(), "gridbench.db") + "?_busy_timeout=5000"
	db, err := OpenDatabase(context.Background(), DatabaseConfig{
		Dialect:      SQLiteDialect,
		DSN:          dsn,
		MaxOpenConns: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := db.Store(strategy)
	require.NoError(t, err)
	return s
}

func factories() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": memoryFactory,
		"sqlite": sqliteFactory,
	}
}

// buildRecords samples n points and indexes them with the strategy's adapter.
func buildRecords(t *testing.T, strategy types.Strategy, n int) (grid.Adapter, []types.LocationRecord) {
	t.Helper()
	points, err := sampler.Sample(n, testBounds, sampler.Uniform{}, 3)
	require.NoError(t, err)

	var a grid.Adapter = grid.NewHexAdapter(testBounds)
	res := types.Resolution(7)
	if strategy == types.StrategySquare {
		a = grid.NewSquareAdapter(testBounds)
		res = 0.02
	}
	built, err := dataset.Build(points, a, res, []string{"cafe", "retail", "office"}, dataset.ValueRange{Min: 1, Max: 100}, 5)
	require.NoError(t, err)
	require.Zero(t, built.Dropped)
	return a, built.Records
}

func forEachStore(t *testing.T, fn func(t *testing.T, strategy types.Strategy, s Store)) {
	for name, factory := range factories() {
		for _, strategy := range []types.Strategy{types.StrategyHex, types.StrategySquare} {
			t.Run(name+"/"+string(strategy), func(t *testing.T) {
				fn(t, strategy, factory(t, strategy))
			})
		}
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	forEachStore(t, func(t *testing.T, strategy types.Strategy, s Store) {
		_, records := buildRecords(t, strategy, 200)

		n, err := s.CreateMany(ctx, records)
		require.NoError(t, err)
		assert.Equal(t, len(records), n)

		count, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, len(records), count)

		want := records[17]
		got, err := s.GetByID(ctx, want.ID)
		require.NoError(t, err)
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.Cell, got.Cell)
		assert.Equal(t, want.Res, got.Res)
		assert.Equal(t, want.Category, got.Category)
		assert.InDelta(t, want.Value, got.Value, 1e-9)
		assert.InDelta(t, want.Point.Lat, got.Point.Lat, 1e-12)
		assert.False(t, got.CreatedAt.IsZero())
		assert.False(t, got.UpdatedAt.IsZero())

		_, err = s.GetByID(ctx, 999999)
		assert.ErrorIs(t, err, gberr.ErrNotFound)
	})
}

func TestStore_QueryByCellMatchesScan(t *testing.T) {
	ctx := context.Background()
	forEachStore(t, func(t *testing.T, strategy types.Strategy, s Store) {
		_, records := buildRecords(t, strategy, 300)
		_, err := s.CreateMany(ctx, records)
		require.NoError(t, err)

		expected := make(map[types.CellID][]int64)
		for _, rec := range records {
			expected[rec.Cell] = append(expected[rec.Cell], rec.ID)
		}

		for cell, ids := range expected {
			got, err := s.QueryByCell(ctx, cell)
			require.NoError(t, err)
			gotIDs := make([]int64, len(got))
			for i, rec := range got {
				gotIDs[i] = rec.ID
				assert.Equal(t, cell, rec.Cell)
			}
			assert.Equal(t, ids, gotIDs, "cell %s", cell)
		}
	})
}

func TestStore_QueryByCellRange(t *testing.T) {
	ctx := context.Background()
	forEachStore(t, func(t *testing.T, strategy types.Strategy, s Store) {
		a, records := buildRecords(t, strategy, 400)
		_, err := s.CreateMany(ctx, records)
		require.NoError(t, err)

		box := types.Bounds{MinLat: 37.5, MinLng: 126.9, MaxLat: 37.6, MaxLng: 127.0}
		cells, err := grid.Cover(a, box, records[0].Res)
		require.NoError(t, err)
		require.NotEmpty(t, cells)

		all, err := s.QueryByCellRange(ctx, CellRange{Cells: cells})
		require.NoError(t, err)

		members := cellSet(cells)
		var want []int64
		for _, rec := range records {
			if _, ok := members[rec.Cell]; ok {
				want = append(want, rec.ID)
			}
		}
		assert.Equal(t, want, recordIDs(all))

		within, err := s.QueryByCellRange(ctx, CellRange{Cells: cells, Within: &box})
		require.NoError(t, err)
		assert.LessOrEqual(t, len(within), len(all))
		for _, rec := range within {
			assert.True(t, box.Contains(rec.Point))
		}

		empty, err := s.QueryByCellRange(ctx, CellRange{})
		require.NoError(t, err)
		assert.Empty(t, empty)
	})
}

func TestStore_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	forEachStore(t, func(t *testing.T, strategy types.Strategy, s Store) {
		_, records := buildRecords(t, strategy, 100)
		_, err := s.CreateMany(ctx, records)
		require.NoError(t, err)

		ids := []int64{records[0].ID, records[1].ID, records[1].ID, 5000}
		n, err := s.UpdateValue(ctx, ids, 2)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		got, err := s.GetByID(ctx, records[0].ID)
		require.NoError(t, err)
		assert.InDelta(t, records[0].Value*2, got.Value, 1e-9)

		n, err = s.DeleteMany(ctx, []int64{records[2].ID, records[3].ID, 5000})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		count, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, len(records)-2, count)

		_, err = s.GetByID(ctx, records[2].ID)
		assert.ErrorIs(t, err, gberr.ErrNotFound)

		// Deleted records leave the cell index too
		cellRecs, err := s.QueryByCell(ctx, records[2].Cell)
		require.NoError(t, err)
		assert.NotContains(t, recordIDs(cellRecs), records[2].ID)
	})
}

func TestStore_AggregateByCell(t *testing.T) {
	ctx := context.Background()
	forEachStore(t, func(t *testing.T, strategy types.Strategy, s Store) {
		_, records := buildRecords(t, strategy, 500)
		_, err := s.CreateMany(ctx, records)
		require.NoError(t, err)

		all, err := s.AggregateByCell(ctx, AggregateOptions{})
		require.NoError(t, err)

		var total int64
		for i, agg := range all {
			total += agg.Count
			assert.LessOrEqual(t, agg.Min, agg.Avg)
			assert.LessOrEqual(t, agg.Avg, agg.Max)
			assert.InDelta(t, agg.Sum/float64(agg.Count), agg.Avg, 1e-6)
			assert.LessOrEqual(t, agg.DistinctCategories, int64(3))
			if i > 0 {
				assert.GreaterOrEqual(t, all[i-1].Count, agg.Count)
			}
		}
		assert.Equal(t, int64(len(records)), total)

		limited, err := s.AggregateByCell(ctx, AggregateOptions{MinCount: 2, Limit: 3})
		require.NoError(t, err)
		assert.LessOrEqual(t, len(limited), 3)
		for i, agg := range limited {
			assert.GreaterOrEqual(t, agg.Count, int64(2))
			assert.Equal(t, all[i].Count, agg.Count)
		}
	})
}

func TestStore_ImplementationsAgree(t *testing.T) {
	ctx := context.Background()
	for _, strategy := range []types.Strategy{types.StrategyHex, types.StrategySquare} {
		t.Run(string(strategy), func(t *testing.T) {
			_, records := buildRecords(t, strategy, 300)
			mem := memoryFactory(t, strategy)
			lite := sqliteFactory(t, strategy)
			for _, s := range []Store{mem, lite} {
				_, err := s.CreateMany(ctx, records)
				require.NoError(t, err)
			}

			memAggs, err := mem.AggregateByCell(ctx, AggregateOptions{})
			require.NoError(t, err)
			liteAggs, err := lite.AggregateByCell(ctx, AggregateOptions{})
			require.NoError(t, err)
			require.Len(t, liteAggs, len(memAggs))
			for i := range memAggs {
				assert.Equal(t, memAggs[i].Cell, liteAggs[i].Cell)
				assert.Equal(t, memAggs[i].Count, liteAggs[i].Count)
				assert.InDelta(t, memAggs[i].Sum, liteAggs[i].Sum, 1e-6)
			}
		})
	}
}

func TestMemoryStore_RejectsReusedIDs(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, records := buildRecords(t, types.StrategyHex, 10)

	_, err := s.CreateMany(ctx, records[:5])
	require.NoError(t, err)

	_, err = s.CreateMany(ctx, records[4:6])
	assert.ErrorIs(t, err, gberr.ErrInvalidParameter)

	// The failed batch stored nothing
	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	_, err = s.DeleteMany(ctx, []int64{records[0].ID})
	require.NoError(t, err)
	_, err = s.CreateMany(ctx, records[:1])
	assert.ErrorIs(t, err, gberr.ErrInvalidParameter)
}

func TestStore_ClosedIsConnectivityFailure(t *testing.T) {
	ctx := context.Background()

	mem := NewMemoryStore()
	require.NoError(t, mem.Close())
	_, err := mem.Count(ctx)
	assert.ErrorIs(t, err, gberr.ErrStoreConnectivity)
	assert.True(t, gberr.IsFatal(err))

	db, err := OpenDatabase(ctx, DatabaseConfig{
		Dialect: SQLiteDialect,
		DSN:     "file:" + filepath.Join(t.TempDir(), "closed.db"),
	})
	require.NoError(t, err)
	s, err := db.Store(types.StrategySquare)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = s.QueryByCell(ctx, types.SquareCell(1, 1, 0.01))
	assert.ErrorIs(t, err, gberr.ErrStoreConnectivity)
}

func TestRelationalStore_RejectsForeignCells(t *testing.T) {
	ctx := context.Background()
	s := sqliteFactory(t, types.StrategyHex)

	_, err := s.QueryByCell(ctx, types.SquareCell(0, 0, 0.01))
	assert.ErrorIs(t, err, gberr.ErrInvalidParameter)

	_, records := buildRecords(t, types.StrategySquare, 3)
	_, err = s.CreateMany(ctx, records)
	assert.ErrorIs(t, err, gberr.ErrInvalidParameter)
}

func TestOpenDatabase_ResetTables(t *testing.T) {
	ctx := context.Background()
	cfg := DatabaseConfig{
		Dialect: SQLiteDialect,
		DSN:     "file:" + filepath.Join(t.TempDir(), "reset.db"),
	}

	db, err := OpenDatabase(ctx, cfg)
	require.NoError(t, err)
	s, err := db.Store(types.StrategyHex)
	require.NoError(t, err)
	_, records := buildRecords(t, types.StrategyHex, 20)
	_, err = s.CreateMany(ctx, records)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	cfg.ResetTables = true
	db, err = OpenDatabase(ctx, cfg)
	require.NoError(t, err)
	defer db.Close()
	s, err = db.Store(types.StrategyHex)
	require.NoError(t, err)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDialect_Placeholders(t *testing.T) {
	assert.Equal(t, "?, ?, ?", SQLiteDialect.Placeholders(1, 3))
	assert.Equal(t, "$3, $4", PostgresDialect.Placeholders(3, 2))
	assert.Equal(t, "", DuckDBDialect.Placeholders(1, 0))

	_, ok := DialectFor("oracle")
	assert.False(t, ok)
	d, ok := DialectFor("postgres")
	assert.True(t, ok)
	assert.Equal(t, PostgresDialect, d)
}

func TestChunkIDs(t *testing.T) {
	ids := make([]int64, 1201)
	for i := range ids {
		ids[i] = int64(i)
	}
	chunks := chunkIDs(ids, 500)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 500)
	assert.Len(t, chunks[2], 201)
	assert.Nil(t, chunkIDs(nil, 500))
}

func recordIDs(records []types.LocationRecord) []int64 {
	var out []int64
	for _, rec := range records {
		out = append(out, rec.ID)
	}
	return out
}
