// Package stats provides running statistics over float64 observations.
package stats

import "math"

// Summary is the finalized view of an Accumulator.
type Summary struct {
	N      int64   `json:"n"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Accumulator tracks count, sum, extremes, and the second central moment of
// a stream of values. Mean is always Sum/N so it can be reproduced from the
// raw observations alone.
type Accumulator struct {
	Count int64
	Sum   float64
	Min   float64
	Max   float64

	// mean and m2 are Welford's running mean and sum of squared deviations
	mean float64
	m2   float64
}

// Accumulate adds one observation. NaN values are ignored.
func (a *Accumulator) Accumulate(v float64) {
	if math.IsNaN(v) {
		return
	}
	if a.Count == 0 || v < a.Min {
		a.Min = v
	}
	if a.Count == 0 || v > a.Max {
		a.Max = v
	}
	a.Count++
	a.Sum += v

	delta := v - a.mean
	a.mean += delta / float64(a.Count)
	a.m2 += delta * (v - a.mean)
}

// Mean returns Sum/Count, or 0 when empty.
func (a *Accumulator) Mean() float64 {
	if a.Count == 0 {
		return 0
	}
	return a.Sum / float64(a.Count)
}

// StdDev returns the sample standard deviation (n-1 denominator); 0 for fewer than two values.
func (a *Accumulator) StdDev() float64 {
	if a.Count < 2 {
		return 0
	}
	return math.Sqrt(a.m2 / float64(a.Count-1))
}

// Result finalizes the accumulator.
func (a *Accumulator) Result() Summary {
	if a.Count == 0 {
		return Summary{}
	}
	return Summary{
		N:      a.Count,
		Mean:   a.Mean(),
		StdDev: a.StdDev(),
		Min:    a.Min,
		Max:    a.Max,
	}
}
