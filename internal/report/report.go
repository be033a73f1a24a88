// Package report turns the sample stream of a run into a structured report.
//
// The report keeps every raw sample next to the derived statistics so that
// consumers can recompute alternative statistics without rerunning the
// benchmark.
package report

import (
	"time"

	"github.com/google/uuid"

	"github.com/arkilian/gridbench/internal/grid"
	"github.com/arkilian/gridbench/internal/stats"
	"github.com/arkilian/gridbench/internal/workload"
	"github.com/arkilian/gridbench/pkg/types"
)

// Adapter names the ratio is computed between.
const (
	HexAdapter    = string(types.StrategyHex)
	SquareAdapter = string(types.StrategySquare)

	// WinnerTie marks operations where both adapters have the same mean
	WinnerTie = "tie"
)

// Report is the full result of one benchmark run.
type Report struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Config ConfigSummary `json:"config"`

	// Dropped counts out-of-bounds points per adapter
	Dropped map[string]int `json:"dropped"`

	// Seeded counts records loaded per adapter
	Seeded map[string]int `json:"seeded"`

	Phases     []workload.PhaseResult `json:"phases"`
	Operations []OperationStats       `json:"operations"`
	Coverage   []grid.Coverage        `json:"coverage,omitempty"`

	// Samples are the raw timing samples in execution order
	Samples []types.TimingSample `json:"samples"`

	Summary Summary `json:"summary"`

	// Error is set when the run stopped early
	Error string `json:"error,omitempty"`
}

// ConfigSummary records the parameters needed to interpret a report.
type ConfigSummary struct {
	Points         int              `json:"points"`
	Distribution   string           `json:"distribution"`
	Bounds         types.Bounds     `json:"bounds"`
	Seed           int64            `json:"seed"`
	HexResolution  types.Resolution `json:"hex_resolution"`
	SquareCellSize types.Resolution `json:"square_cell_size"`
	Trials         int              `json:"trials"`
	RingSize       int              `json:"ring_size"`
	QueryCount     int              `json:"query_count"`
	BatchSize      int              `json:"batch_size"`
	Store          string           `json:"store"`
}

// AdapterStats summarizes one adapter's successful samples for one operation.
// Durations are in nanoseconds.
type AdapterStats struct {
	Adapter string `json:"adapter"`

	N      int64   `json:"n"`
	Failed int     `json:"failed"`
	MeanNs float64 `json:"mean_ns"`
	StdDev float64 `json:"stddev_ns"`
	MinNs  float64 `json:"min_ns"`
	MaxNs  float64 `json:"max_ns"`

	MeanResultCount float64 `json:"mean_result_count"`
}

// OperationStats compares the adapters on one operation.
type OperationStats struct {
	Operation string         `json:"operation"`
	Adapters  []AdapterStats `json:"adapters"`

	// Ratio is mean(square)/mean(hex); nil when either side has no
	// successful sample or the hex mean is zero
	Ratio *float64 `json:"ratio"`

	// Winner is the adapter with the lower mean, WinnerTie, or empty when undecided
	Winner string `json:"winner,omitempty"`
}

// Summary is the machine-readable headline of a run.
type Summary struct {
	Operations    int            `json:"operations"`
	Samples       int            `json:"samples"`
	FailedSamples int            `json:"failed_samples"`
	Wins          map[string]int `json:"wins"`

	// Complete is true when every phase completed for every adapter
	Complete bool `json:"complete"`
}

// Meta carries the run context that is not derivable from samples.
type Meta struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Config     ConfigSummary
	Dropped    map[string]int
	Seeded     map[string]int
	Coverage   []grid.Coverage
	Err        error
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.New().String()
}

// Aggregate groups samples by (operation, adapter) in order of first
// appearance and derives per-operation statistics, ratios, and winners.
func Aggregate(samples []types.TimingSample, phases []workload.PhaseResult, meta Meta) *Report {
	r := &Report{
		RunID:      meta.RunID,
		StartedAt:  meta.StartedAt,
		FinishedAt: meta.FinishedAt,
		Config:     meta.Config,
		Dropped:    meta.Dropped,
		Seeded:     meta.Seeded,
		Phases:     phases,
		Coverage:   meta.Coverage,
		Samples:    samples,
	}
	if r.RunID == "" {
		r.RunID = NewRunID()
	}
	if r.Samples == nil {
		r.Samples = []types.TimingSample{}
	}
	if meta.Err != nil {
		r.Error = meta.Err.Error()
	}

	var opOrder []string
	adapterOrder := make(map[string][]string)
	groups := make(map[string]map[string]*sampleGroup)

	for _, s := range samples {
		byAdapter, ok := groups[s.Operation]
		if !ok {
			byAdapter = make(map[string]*sampleGroup)
			groups[s.Operation] = byAdapter
			opOrder = append(opOrder, s.Operation)
		}
		g, ok := byAdapter[s.Adapter]
		if !ok {
			g = &sampleGroup{}
			byAdapter[s.Adapter] = g
			adapterOrder[s.Operation] = append(adapterOrder[s.Operation], s.Adapter)
		}

		if s.Failed {
			g.failed++
			continue
		}
		g.elapsed.Accumulate(float64(s.Elapsed.Nanoseconds()))
		g.results.Accumulate(float64(s.ResultCount))
	}

	r.Summary.Wins = make(map[string]int)
	for _, op := range opOrder {
		opStats := OperationStats{Operation: op}
		for _, adapter := range adapterOrder[op] {
			g := groups[op][adapter]
			sum := g.elapsed.Result()
			opStats.Adapters = append(opStats.Adapters, AdapterStats{
				Adapter:         adapter,
				N:               sum.N,
				Failed:          g.failed,
				MeanNs:          sum.Mean,
				StdDev:          sum.StdDev,
				MinNs:           sum.Min,
				MaxNs:           sum.Max,
				MeanResultCount: g.results.Mean(),
			})
			r.Summary.FailedSamples += g.failed
		}

		hex, square := groups[op][HexAdapter], groups[op][SquareAdapter]
		opStats.Ratio = Ratio(hex.accumulator(), square.accumulator())
		opStats.Winner = winner(hex.accumulator(), square.accumulator())
		if opStats.Winner != "" {
			r.Summary.Wins[opStats.Winner]++
		}
		r.Operations = append(r.Operations, opStats)
	}

	r.Summary.Operations = len(r.Operations)
	r.Summary.Samples = len(samples)
	r.Summary.Complete = meta.Err == nil
	for _, p := range phases {
		if p.Status != workload.StatusComplete {
			r.Summary.Complete = false
		}
	}
	return r
}

// sampleGroup accumulates one (operation, adapter) pair.
type sampleGroup struct {
	elapsed stats.Accumulator
	results stats.Accumulator
	failed  int
}

func (g *sampleGroup) accumulator() *stats.Accumulator {
	if g == nil {
		return nil
	}
	return &g.elapsed
}

// Ratio returns mean(square)/mean(hex), or nil when it is undefined.
func Ratio(hex, square *stats.Accumulator) *float64 {
	if hex == nil || square == nil || hex.Count == 0 || square.Count == 0 {
		return nil
	}
	hm := hex.Mean()
	if hm == 0 {
		return nil
	}
	ratio := square.Mean() / hm
	return &ratio
}

func winner(hex, square *stats.Accumulator) string {
	if hex == nil || square == nil || hex.Count == 0 || square.Count == 0 {
		return ""
	}
	switch hm, sm := hex.Mean(), square.Mean(); {
	case hm < sm:
		return HexAdapter
	case sm < hm:
		return SquareAdapter
	}
	return WinnerTie
}

// Operation returns the stats for op, or nil.
func (r *Report) Operation(op string) *OperationStats {
	for i := range r.Operations {
		if r.Operations[i].Operation == op {
			return &r.Operations[i]
		}
	}
	return nil
}

// Adapter returns the stats for adapter, or nil.
func (o *OperationStats) Adapter(adapter string) *AdapterStats {
	for i := range o.Adapters {
		if o.Adapters[i].Adapter == adapter {
			return &o.Adapters[i]
		}
	}
	return nil
}
