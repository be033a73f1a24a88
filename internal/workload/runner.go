// Package workload executes the benchmark battery against paired targets.
//
// A run seeds every target's store with its dataset, then executes each
// selected phase once per target, hex before square, with identical inputs.
// Each phase performs one untimed warm-up followed by the configured number
// of timed trials. Samples are collected in execution order.
package workload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arkilian/gridbench/internal/dataset"
	gberr "github.com/arkilian/gridbench/internal/errors"
	"github.com/arkilian/gridbench/internal/grid"
	"github.com/arkilian/gridbench/internal/logging"
	"github.com/arkilian/gridbench/internal/store"
	"github.com/arkilian/gridbench/pkg/types"
)

// Options holds the immutable workload parameters of one run.
type Options struct {
	Phases     []Phase
	Trials     int
	RingSize   int
	QueryCount int
	BatchSize  int

	// Bounds is the run extent; fresh insert batches are sampled inside it
	Bounds types.Bounds

	RangeBoxes []types.Bounds

	CoverageCenter   types.GeoPoint
	CoverageRadiusKm float64

	Aggregate    store.AggregateOptions
	UpdateFactor float64

	Categories []string
	Values     dataset.ValueRange
	Seed       int64
}

// Target is one adapter paired with its store and the dataset seeded into it.
type Target struct {
	Adapter grid.Adapter
	Store   store.Store
	Dataset *dataset.Result
	Res     types.Resolution

	// ParentRes is the coarser resolution the aggregate phase rolls cells up to
	ParentRes types.Resolution
}

// Observer receives every timing sample as it is recorded.
type Observer interface {
	ObserveSample(sample types.TimingSample)
}

// PhaseResult is the outcome of one phase for one adapter.
type PhaseResult struct {
	Phase   Phase  `json:"phase"`
	Adapter string `json:"adapter"`
	Status  Status `json:"status"`

	// Samples is the number of timed samples recorded, failed ones included
	Samples int `json:"samples"`
	Failed  int `json:"failed"`

	Err string `json:"error,omitempty"`
}

// Result is everything a run produced, complete or not.
type Result struct {
	Samples  []types.TimingSample `json:"samples"`
	Phases   []PhaseResult        `json:"phases"`
	Coverage []grid.Coverage      `json:"coverage,omitempty"`

	// Seeded is the number of records loaded per adapter
	Seeded map[string]int `json:"seeded"`
}

// NotRun returns a not-run status for every (phase, adapter) pair, phases outermost.
func NotRun(phases []Phase, adapters []string) []PhaseResult {
	results := make([]PhaseResult, 0, len(phases)*len(adapters))
	for _, p := range phases {
		for _, adapter := range adapters {
			results = append(results, PhaseResult{Phase: p, Adapter: adapter, Status: StatusNotRun})
		}
	}
	return results
}

// Runner drives one benchmark run. It is single-threaded and not reusable
// while a run is in progress.
type Runner struct {
	opts     Options
	targets  []Target
	observer Observer

	state  State
	inputs *inputs
	result *Result
}

// NewRunner validates the options and targets.
func NewRunner(opts Options, targets []Target, observer Observer) (*Runner, error) {
	if len(targets) == 0 {
		return nil, gberr.InvalidParameter("at least one target is required")
	}
	for i, t := range targets {
		if t.Adapter == nil || t.Store == nil || t.Dataset == nil {
			return nil, gberr.InvalidParameter("target %d is missing its adapter, store, or dataset", i)
		}
	}
	if opts.Trials <= 0 {
		return nil, gberr.InvalidParameter("trials must be positive, got %d", opts.Trials)
	}
	if opts.RingSize < 0 {
		return nil, gberr.InvalidParameter("ring size must be non-negative, got %d", opts.RingSize)
	}
	if opts.QueryCount <= 0 || opts.BatchSize <= 0 {
		return nil, gberr.InvalidParameter("query count and batch size must be positive")
	}
	if len(opts.Phases) == 0 {
		opts.Phases = append([]Phase(nil), AllPhases...)
	}
	if err := opts.Bounds.Validate(); err != nil {
		return nil, gberr.InvalidParameterCause("invalid workload bounds", err)
	}

	return &Runner{
		opts:     opts,
		targets:  targets,
		observer: observer,
		state:    StateIdle,
	}, nil
}

// State returns the current lifecycle state.
func (r *Runner) State() State { return r.state }

func (r *Runner) transition(to State) error {
	if !canTransition(r.state, to) {
		return gberr.InvalidTransition(string(r.state), string(to))
	}
	logging.Debug().Str("from", string(r.state)).Str("to", string(to)).Msg("runner transition")
	r.state = to
	return nil
}

// Run seeds the stores and executes every selected phase.
//
// A store connectivity failure or context cancellation aborts the run: the
// remaining phases are reported as not run and the partial result is
// returned together with the error. Any other store failure aborts only the
// remaining trials of that phase for that adapter.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if err := r.transition(StateSeeding); err != nil {
		return nil, err
	}

	adapters := make([]string, len(r.targets))
	for i, t := range r.targets {
		adapters[i] = t.Adapter.Name()
	}
	r.result = &Result{
		Phases: NotRun(r.opts.Phases, adapters),
		Seeded: make(map[string]int),
	}

	runErr := r.seed(ctx)
	if runErr == nil {
		runErr = r.runPhases(ctx)
	}

	if err := r.transition(StateReporting); err != nil {
		return nil, err
	}
	result := r.result
	if err := r.transition(StateIdle); err != nil {
		return nil, err
	}
	return result, runErr
}

func (r *Runner) seed(ctx context.Context) error {
	for _, t := range r.targets {
		n, err := t.Store.CreateMany(ctx, t.Dataset.Records)
		if err != nil {
			logging.Err(err).Str("adapter", t.Adapter.Name()).Msg("seeding failed")
			return fmt.Errorf("seed %s store: %w", t.Adapter.Name(), err)
		}
		r.result.Seeded[t.Adapter.Name()] = n
		logging.Info().
			Str("adapter", t.Adapter.Name()).
			Int("records", n).
			Int("dropped", t.Dataset.Dropped).
			Msg("store seeded")
	}

	in, err := buildInputs(&r.opts, r.targets)
	if err != nil {
		return err
	}
	r.inputs = in
	return nil
}

func (r *Runner) runPhases(ctx context.Context) error {
	for _, p := range r.opts.Phases {
		if err := r.transition(phaseState(p)); err != nil {
			return err
		}
		for _, t := range r.targets {
			if err := r.runPhase(ctx, p, t); err != nil {
				return err
			}
		}
	}
	return nil
}

// runPhase executes the warm-up and trials of p against t. It returns an
// error only when the whole run must stop.
func (r *Runner) runPhase(ctx context.Context, p Phase, t Target) error {
	pr := r.phaseResult(p, t.Adapter.Name())
	pr.Status = StatusPartial

	op, err := r.operation(p, t)
	if err != nil {
		pr.Err = err.Error()
		logging.Err(err).Str("phase", string(p)).Str("adapter", t.Adapter.Name()).Msg("phase setup failed")
		return nil
	}

	logging.Debug().Str("phase", string(p)).Str("adapter", t.Adapter.Name()).Int("trials", r.opts.Trials).Msg("phase started")

	for slot := 0; slot <= r.opts.Trials; slot++ {
		if err := ctx.Err(); err != nil {
			pr.Err = err.Error()
			return err
		}

		start := time.Now()
		n, opErr := op.run(ctx, slot)
		elapsed := time.Since(start)

		if opErr == nil && op.cleanup != nil {
			if err := op.cleanup(ctx, slot); err != nil {
				opErr = fmt.Errorf("cleanup: %w", err)
			}
		}

		failed := false
		if opErr != nil {
			switch {
			case ctx.Err() != nil, gberr.IsFatal(opErr):
				pr.Err = opErr.Error()
				logging.Err(opErr).Str("phase", string(p)).Str("adapter", t.Adapter.Name()).Msg("run aborted")
				return opErr
			case errors.Is(opErr, gberr.ErrQueryTimeout):
				failed = true
			default:
				pr.Err = opErr.Error()
				logging.Warn().Err(opErr).
					Str("phase", string(p)).
					Str("adapter", t.Adapter.Name()).
					Int("trials", pr.Samples).
					Msg("phase aborted")
				return nil
			}
		}

		// Slot 0 is the warm-up
		if slot == 0 {
			continue
		}

		sample := types.TimingSample{
			Operation:   string(p),
			Adapter:     t.Adapter.Name(),
			Elapsed:     elapsed,
			ResultCount: n,
			Trial:       slot,
			Failed:      failed,
		}
		if failed {
			sample.Err = opErr.Error()
			pr.Failed++
		}
		pr.Samples++
		r.record(sample)
	}

	if pr.Failed == 0 {
		pr.Status = StatusComplete
	}
	logging.Info().
		Str("phase", string(p)).
		Str("adapter", t.Adapter.Name()).
		Int("trials", pr.Samples).
		Int("failed", pr.Failed).
		Msg("phase finished")
	return nil
}

func (r *Runner) record(sample types.TimingSample) {
	r.result.Samples = append(r.result.Samples, sample)
	if r.observer != nil {
		r.observer.ObserveSample(sample)
	}
}

func (r *Runner) phaseResult(p Phase, adapter string) *PhaseResult {
	for i := range r.result.Phases {
		pr := &r.result.Phases[i]
		if pr.Phase == p && pr.Adapter == adapter {
			return pr
		}
	}
	r.result.Phases = append(r.result.Phases, PhaseResult{Phase: p, Adapter: adapter, Status: StatusNotRun})
	return &r.result.Phases[len(r.result.Phases)-1]
}
