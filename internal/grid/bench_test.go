package grid

import (
	"fmt"
	"testing"

	"github.com/arkilian/gridbench/internal/sampler"
	"github.com/arkilian/gridbench/pkg/types"
)

var benchBounds = types.Bounds{MinLat: 37.4, MinLng: 126.8, MaxLat: 37.7, MaxLng: 127.1}

func benchPoints(b *testing.B) []types.GeoPoint {
	b.Helper()
	points, err := sampler.Sample(10000, benchBounds, sampler.Uniform{}, 42)
	if err != nil {
		b.Fatal(err)
	}
	return points
}

// BenchmarkToCell measures point indexing for both adapters
func BenchmarkToCell(b *testing.B) {
	points := benchPoints(b)
	cases := []struct {
		adapter Adapter
		res     types.Resolution
	}{
		{NewHexAdapter(benchBounds), 8},
		{NewSquareAdapter(benchBounds), 0.01},
	}

	for _, c := range cases {
		b.Run(c.adapter.Name(), func(b *testing.B) {
			b.ResetTimer()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				if _, err := c.adapter.ToCell(points[i%len(points)], c.res); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkNeighbors measures ring expansion at k=1 and k=3
func BenchmarkNeighbors(b *testing.B) {
	center := types.GeoPoint{Lat: 37.5665, Lng: 126.9780}
	cases := []struct {
		adapter Adapter
		res     types.Resolution
	}{
		{NewHexAdapter(benchBounds), 8},
		{NewSquareAdapter(benchBounds), 0.01},
	}

	for _, c := range cases {
		cell, err := c.adapter.ToCell(center, c.res)
		if err != nil {
			b.Fatal(err)
		}
		for _, k := range []int{1, 3} {
			b.Run(fmt.Sprintf("%s/k%d", c.adapter.Name(), k), func(b *testing.B) {
				b.ResetTimer()
				b.ReportAllocs()

				for i := 0; i < b.N; i++ {
					if _, err := c.adapter.Neighbors(cell, k); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}
