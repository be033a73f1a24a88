// Package app wires configuration, indexing, stores, and the workload runner
// into one benchmark run.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/arkilian/gridbench/internal/config"
	"github.com/arkilian/gridbench/internal/dataset"
	gberr "github.com/arkilian/gridbench/internal/errors"
	"github.com/arkilian/gridbench/internal/grid"
	"github.com/arkilian/gridbench/internal/logging"
	"github.com/arkilian/gridbench/internal/metrics"
	"github.com/arkilian/gridbench/internal/report"
	"github.com/arkilian/gridbench/internal/sampler"
	"github.com/arkilian/gridbench/internal/storage"
	"github.com/arkilian/gridbench/internal/store"
	"github.com/arkilian/gridbench/internal/workload"
	"github.com/arkilian/gridbench/pkg/types"
)

// App runs benchmarks for one configuration.
type App struct {
	cfg    *config.Config
	phases []workload.Phase

	// recorder holds the metrics of the latest run
	recorder *metrics.Recorder

	// reportPath is the local artifact of the latest run
	reportPath string

	mu      sync.Mutex
	running bool
}

// New resolves and validates cfg and prepares its directories.
func New(cfg *config.Config) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	phases, err := workload.ParsePhases(cfg.Workload.Phases)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	return &App{
		cfg:    cfg,
		phases: phases,
	}, nil
}

// Config returns the resolved configuration.
func (a *App) Config() *config.Config { return a.cfg }

// Recorder returns the metrics recorder of the latest run, or nil.
func (a *App) Recorder() *metrics.Recorder { return a.recorder }

// ReportPath returns the local report artifact of the latest run.
func (a *App) ReportPath() string { return a.reportPath }

// Run executes one benchmark and returns its report.
//
// A run that stops early (connectivity loss, cancellation) still returns the
// partial report together with the error. Store handles are closed on every
// path.
func (a *App) Run(ctx context.Context) (rep *report.Report, err error) {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return nil, fmt.Errorf("a run is already in progress")
	}
	a.running = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	var resources closerStack
	defer func() {
		if closeErr := resources.closeAll(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	started := time.Now().UTC()
	a.recorder = metrics.NewRecorder()
	a.reportPath = ""

	targets, dropped, err := a.prepare(ctx, &resources)
	if err != nil {
		if !gberr.IsFatal(err) && ctx.Err() == nil {
			return nil, err
		}
		// Nothing ran, but the failure is still recorded in a report
		logging.Err(err).Msg("run aborted before seeding")
		return a.finish(ctx, started, &workload.Result{
			Phases: workload.NotRun(a.phases, adapterNames(a.cfg.Bounds)),
			Seeded: map[string]int{},
		}, dropped, err)
	}

	runner, err := workload.NewRunner(a.workloadOptions(), targets, a.recorder)
	if err != nil {
		return nil, err
	}

	result, runErr := runner.Run(ctx)
	if result == nil {
		return nil, runErr
	}
	return a.finish(ctx, started, result, dropped, runErr)
}

// finish aggregates result into a report and exports it. Export failures are
// joined to runErr.
func (a *App) finish(ctx context.Context, started time.Time, result *workload.Result, dropped map[string]int, runErr error) (*report.Report, error) {
	rep := report.Aggregate(result.Samples, result.Phases, report.Meta{
		RunID:      report.NewRunID(),
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
		Config:     a.configSummary(),
		Dropped:    dropped,
		Seeded:     result.Seeded,
		Coverage:   result.Coverage,
		Err:        runErr,
	})

	// Partial reports are still written when the run context is cancelled
	exportCtx := context.WithoutCancel(ctx)
	if exportErr := a.export(exportCtx, rep); exportErr != nil {
		runErr = errors.Join(runErr, exportErr)
	}

	logging.Info().
		Str("run_id", rep.RunID).
		Int("samples", rep.Summary.Samples).
		Int("failed", rep.Summary.FailedSamples).
		Bool("complete", rep.Summary.Complete).
		Dur("elapsed", time.Since(started)).
		Msg("run finished")

	return rep, runErr
}

func adapterNames(bounds types.Bounds) []string {
	var names []string
	for _, a := range grid.NewAdapters(bounds) {
		names = append(names, a.Name())
	}
	return names
}

// prepare samples points, builds one dataset per adapter, and opens the stores.
func (a *App) prepare(ctx context.Context, resources *closerStack) ([]workload.Target, map[string]int, error) {
	cfg := a.cfg

	dist, err := sampler.FromConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	points, err := sampler.Sample(cfg.Points, cfg.Bounds, dist, cfg.Seed)
	if err != nil {
		return nil, nil, err
	}
	logging.Info().
		Int("points", len(points)).
		Str("distribution", cfg.Distribution).
		Int64("seed", cfg.Seed).
		Msg("points sampled")

	values := dataset.ValueRange{Min: cfg.Dataset.ValueMin, Max: cfg.Dataset.ValueMax}
	dropped := make(map[string]int)
	var targets []workload.Target

	adapters := grid.NewAdapters(cfg.Bounds)
	datasets := make([]*dataset.Result, len(adapters))
	for i, adapter := range adapters {
		res, _ := a.resolutions(adapter.Strategy())
		ds, err := dataset.Build(points, adapter, res, cfg.Dataset.Categories, values, cfg.Seed)
		if err != nil {
			return nil, nil, err
		}

		dropped[adapter.Name()] = ds.Dropped
		a.recorder.SetDropped(adapter.Name(), ds.Dropped)
		if ds.Dropped > 0 {
			logging.Warn().Str("adapter", adapter.Name()).Int("dropped", ds.Dropped).Msg("points outside bounds dropped")
		}
		datasets[i] = ds
	}

	stores, err := a.openStores(ctx, resources)
	if err != nil {
		return nil, dropped, err
	}

	for i, adapter := range adapters {
		res, parent := a.resolutions(adapter.Strategy())
		targets = append(targets, workload.Target{
			Adapter:   adapter,
			Store:     stores[adapter.Strategy()],
			Dataset:   datasets[i],
			Res:       res,
			ParentRes: parent,
		})
	}
	return targets, dropped, nil
}

// openStores opens one store per strategy. Relational stores share one pool.
func (a *App) openStores(ctx context.Context, resources *closerStack) (map[types.Strategy]store.Store, error) {
	cfg := a.cfg.Store
	stores := make(map[types.Strategy]store.Store, 2)

	if !cfg.Type.IsRelational() {
		for _, strategy := range []types.Strategy{types.StrategyHex, types.StrategySquare} {
			m := store.NewMemoryStore()
			resources.push(string(strategy)+" store", m)
			stores[strategy] = m
		}
		return stores, nil
	}

	dialect, ok := store.DialectFor(string(cfg.Type))
	if !ok {
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}
	db, err := store.OpenDatabase(ctx, store.DatabaseConfig{
		Dialect:          dialect,
		DSN:              cfg.DSN,
		StatementTimeout: cfg.StatementTimeout,
		MaxOpenConns:     cfg.MaxOpenConns,
		ResetTables:      cfg.ResetTables,
	})
	if err != nil {
		return nil, err
	}
	resources.push(dialect.Name+" database", db)
	logging.Info().Str("store", dialect.Name).Bool("reset", cfg.ResetTables).Msg("database opened")

	for _, strategy := range []types.Strategy{types.StrategyHex, types.StrategySquare} {
		s, err := db.Store(strategy)
		if err != nil {
			return nil, err
		}
		stores[strategy] = s
	}
	return stores, nil
}

func (a *App) resolutions(strategy types.Strategy) (res, parent types.Resolution) {
	if strategy == types.StrategyHex {
		return a.cfg.HexResolution(), types.Resolution(a.cfg.Grid.HexParentResolution)
	}
	return a.cfg.SquareResolution(), types.Resolution(a.cfg.Grid.SquareParentCellSize)
}

func (a *App) workloadOptions() workload.Options {
	w := a.cfg.Workload
	boxes := w.RangeBoxes
	if len(boxes) == 0 {
		boxes = deriveRangeBoxes(a.cfg.Bounds)
	}
	return workload.Options{
		Phases:           a.phases,
		Trials:           w.Trials,
		RingSize:         w.RingSize,
		QueryCount:       w.QueryCount,
		BatchSize:        w.BatchSize,
		Bounds:           a.cfg.Bounds,
		RangeBoxes:       boxes,
		CoverageCenter:   w.CoverageCenter,
		CoverageRadiusKm: w.CoverageRadiusKm,
		Aggregate:        store.AggregateOptions{MinCount: w.AggregateMinCount, Limit: w.AggregateLimit},
		UpdateFactor:     w.UpdateFactor,
		Categories:       a.cfg.Dataset.Categories,
		Values:           dataset.ValueRange{Min: a.cfg.Dataset.ValueMin, Max: a.cfg.Dataset.ValueMax},
		Seed:             a.cfg.Seed,
	}
}

// deriveRangeBoxes places three windows, each a tenth of the extent, on the
// diagonal of bounds.
func deriveRangeBoxes(b types.Bounds) []types.Bounds {
	dLat := (b.MaxLat - b.MinLat) / 10
	dLng := (b.MaxLng - b.MinLng) / 10
	var boxes []types.Bounds
	for _, f := range []float64{0.25, 0.5, 0.75} {
		lat := b.MinLat + f*(b.MaxLat-b.MinLat)
		lng := b.MinLng + f*(b.MaxLng-b.MinLng)
		boxes = append(boxes, types.Bounds{
			MinLat: lat - dLat/2, MinLng: lng - dLng/2,
			MaxLat: lat + dLat/2, MaxLng: lng + dLng/2,
		})
	}
	return boxes
}

func (a *App) configSummary() report.ConfigSummary {
	return report.ConfigSummary{
		Points:         a.cfg.Points,
		Distribution:   a.cfg.Distribution,
		Bounds:         a.cfg.Bounds,
		Seed:           a.cfg.Seed,
		HexResolution:  a.cfg.HexResolution(),
		SquareCellSize: a.cfg.SquareResolution(),
		Trials:         a.cfg.Workload.Trials,
		RingSize:       a.cfg.Workload.RingSize,
		QueryCount:     a.cfg.Workload.QueryCount,
		BatchSize:      a.cfg.Workload.BatchSize,
		Store:          string(a.cfg.Store.Type),
	}
}

// objectStorage builds the configured report storage, or nil when exports are disabled.
func (a *App) objectStorage(ctx context.Context) (storage.ObjectStorage, error) {
	sc := a.cfg.Report.Storage
	objects, err := storage.New(ctx, storage.Config{
		Type:   sc.Type,
		Path:   sc.Path,
		Bucket: sc.S3.Bucket,
		S3: storage.S3Config{
			Region:       sc.S3.Region,
			Endpoint:     sc.S3.Endpoint,
			UsePathStyle: sc.S3.UsePathStyle,
			Prefix:       sc.S3.Prefix,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize report storage: %w", err)
	}
	return objects, nil
}

// export writes the report artifact, prunes old exports, and writes the
// metrics textfile.
func (a *App) export(ctx context.Context, rep *report.Report) error {
	objects, err := a.objectStorage(ctx)
	if err != nil {
		return err
	}

	path, err := report.Export(ctx, objects, rep, a.cfg.Report.Dir, a.cfg.Report.Compress)
	a.reportPath = path
	if err != nil {
		logging.Err(err).Str("run_id", rep.RunID).Msg("report export failed")
		return err
	}

	if objects != nil && a.cfg.Report.Retain > 0 {
		if _, err := report.Prune(ctx, objects, a.cfg.Report.Retain); err != nil {
			logging.Err(err).Int("retain", a.cfg.Report.Retain).Msg("report pruning failed")
			return err
		}
	}

	if a.cfg.Metrics.Textfile != "" {
		if err := a.recorder.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
			logging.Err(err).Str("path", a.cfg.Metrics.Textfile).Msg("metrics textfile failed")
			return err
		}
	}
	return nil
}

// StoredReports lists the exported reports, newest first.
func (a *App) StoredReports(ctx context.Context) ([]string, error) {
	objects, err := a.objectStorage(ctx)
	if err != nil {
		return nil, err
	}
	if objects == nil {
		return nil, fmt.Errorf("report storage is disabled")
	}
	return report.List(ctx, objects)
}

// FetchReport downloads an exported report under the report directory.
func (a *App) FetchReport(ctx context.Context, name string) (*report.Report, error) {
	objects, err := a.objectStorage(ctx)
	if err != nil {
		return nil, err
	}
	if objects == nil {
		return nil, fmt.Errorf("report storage is disabled")
	}
	return report.Fetch(ctx, objects, name, filepath.Join(a.cfg.Report.Dir, "fetched"))
}
