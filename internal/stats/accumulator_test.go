package stats

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func summarize(values []float64) Summary {
	var a Accumulator
	for _, v := range values {
		a.Accumulate(v)
	}
	return a.Result()
}

func TestAccumulator_Result(t *testing.T) {
	s := summarize([]float64{2, 4, 4, 4, 5, 5, 7, 9})

	assert.Equal(t, int64(8), s.N)
	assert.Equal(t, 5.0, s.Mean)
	assert.Equal(t, 2.0, s.Min)
	assert.Equal(t, 9.0, s.Max)
	// sample variance = 32/7
	assert.InDelta(t, math.Sqrt(32.0/7.0), s.StdDev, 1e-12)
}

func TestAccumulator_ResultEdges(t *testing.T) {
	assert.Equal(t, Summary{}, summarize(nil))

	one := summarize([]float64{3.5})
	assert.Equal(t, int64(1), one.N)
	assert.Equal(t, 3.5, one.Mean)
	assert.Zero(t, one.StdDev)

	withNaN := summarize([]float64{1, math.NaN(), 3})
	assert.Equal(t, int64(2), withNaN.N)
	assert.Equal(t, 2.0, withNaN.Mean)
}

func TestProperty_MeanIsSumOverCount(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("mean equals sum/n and lies within [min, max]", prop.ForAll(
		func(values []float64) bool {
			s := summarize(values)
			if len(values) == 0 {
				return s == Summary{}
			}
			sum := 0.0
			for _, v := range values {
				sum += v
			}
			return s.Mean == sum/float64(len(values)) &&
				s.Min <= s.Mean+1e-6 && s.Mean <= s.Max+1e-6 &&
				s.StdDev >= 0
		},
		gen.SliceOf(gen.Float64Range(0, 1e6)),
	))

	properties.TestingRun(t)
}
