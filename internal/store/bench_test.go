package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/arkilian/gridbench/internal/dataset"
	"github.com/arkilian/gridbench/internal/grid"
	"github.com/arkilian/gridbench/internal/sampler"
	"github.com/arkilian/gridbench/pkg/types"
)

// BenchmarkQueryByCell measures single-cell lookups on every store implementation
func BenchmarkQueryByCell(b *testing.B) {
	ctx := context.Background()
	factories := map[string]func(tb testing.TB) *benchTarget{
		"memory": newMemoryBenchTarget,
		"sqlite": newSQLiteBenchTarget,
	}

	for name, factory := range factories {
		b.Run(name, func(b *testing.B) {
			target := factory(b)
			b.ResetTimer()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				cell := target.cells[i%len(target.cells)]
				if _, err := target.store.QueryByCell(ctx, cell); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkAggregateByCell measures the per-cell rollup
func BenchmarkAggregateByCell(b *testing.B) {
	ctx := context.Background()
	factories := map[string]func(tb testing.TB) *benchTarget{
		"memory": newMemoryBenchTarget,
		"sqlite": newSQLiteBenchTarget,
	}

	for name, factory := range factories {
		b.Run(name, func(b *testing.B) {
			target := factory(b)
			b.ResetTimer()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				if _, err := target.store.AggregateByCell(ctx, AggregateOptions{MinCount: 1}); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

type benchTarget struct {
	store Store
	cells []types.CellID
}

func benchRecords(tb testing.TB) []types.LocationRecord {
	tb.Helper()
	points, err := sampler.Sample(5000, testBounds, sampler.Uniform{}, 11)
	if err != nil {
		tb.Fatal(err)
	}
	built, err := dataset.Build(points, grid.NewHexAdapter(testBounds), 8, []string{"cafe", "retail"}, dataset.ValueRange{Min: 1, Max: 100}, 11)
	if err != nil {
		tb.Fatal(err)
	}
	return built.Records
}

func seedBenchTarget(tb testing.TB, s Store) *benchTarget {
	tb.Helper()
	records := benchRecords(tb)
	if _, err := s.CreateMany(context.Background(), records); err != nil {
		tb.Fatal(err)
	}
	cells := make([]types.CellID, 0, len(records))
	for _, rec := range records {
		cells = append(cells, rec.Cell)
	}
	return &benchTarget{store: s, cells: cells}
}

func newMemoryBenchTarget(tb testing.TB) *benchTarget {
	s := NewMemoryStore()
	tb.Cleanup(func() { s.Close() })
	return seedBenchTarget(tb, s)
}

func newSQLiteBenchTarget(tb testing.TB) *benchTarget {
	dsn := "file:" + filepath.Join(tb.TempDir(), "bench.db") + "?_busy_timeout=5000"
	db, err := OpenDatabase(context.Background(), DatabaseConfig{Dialect: SQLiteDialect, DSN: dsn})
	if err != nil {
		tb.Fatal(err)
	}
	tb.Cleanup(func() { db.Close() })

	s, err := db.Store(types.StrategyHex)
	if err != nil {
		tb.Fatal(err)
	}
	return seedBenchTarget(tb, s)
}
