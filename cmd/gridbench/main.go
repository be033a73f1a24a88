// Package main implements the gridbench binary: one benchmark run comparing
// hexagonal and square grid indexing, reported as JSON.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/arkilian/gridbench/internal/app"
	"github.com/arkilian/gridbench/internal/config"
	"github.com/arkilian/gridbench/internal/logging"
	"github.com/arkilian/gridbench/internal/report"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  string
		points      int
		seed        int64
		trials      int
		storeType   string
		dsn         string
		outDir      string
		logLevel    string
		listReports bool
		showReport  string
		showVersion bool
		showHelp    bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.IntVar(&points, "points", 0, "Number of sampled points")
	flag.Int64Var(&seed, "seed", 0, "Random seed")
	flag.IntVar(&trials, "trials", 0, "Timed trials per phase per adapter")
	flag.StringVar(&storeType, "store", "", "Store type: memory, sqlite, postgres, duckdb")
	flag.StringVar(&dsn, "dsn", "", "Database connection string for relational stores")
	flag.StringVar(&outDir, "out", "", "Directory for the report artifact")
	flag.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.BoolVar(&listReports, "list-reports", false, "List exported reports and exit")
	flag.StringVar(&showReport, "show", "", "Fetch an exported report by name, print its summary, and exit")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showHelp, "help", false, "Show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "gridbench - hexagonal vs square grid indexing benchmark\n\n")
		fmt.Fprintf(os.Stderr, "Usage: gridbench [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  gridbench --points 10000 --trials 5\n")
		fmt.Fprintf(os.Stderr, "  gridbench --store sqlite --out ./reports\n")
		fmt.Fprintf(os.Stderr, "  gridbench --config ./gridbench.yaml\n")
		fmt.Fprintf(os.Stderr, "  gridbench --list-reports\n")
		fmt.Fprintf(os.Stderr, "\nRelational stores truncate their tables before seeding unless\n")
		fmt.Fprintf(os.Stderr, "store.reset_tables is false (GRIDBENCH_STORE_RESET_TABLES=false).\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables (also read from .env):\n")
		fmt.Fprintf(os.Stderr, "  GRIDBENCH_POINTS        Number of sampled points\n")
		fmt.Fprintf(os.Stderr, "  GRIDBENCH_SEED          Random seed\n")
		fmt.Fprintf(os.Stderr, "  GRIDBENCH_PHASES        Comma-separated phase list\n")
		fmt.Fprintf(os.Stderr, "  GRIDBENCH_STORE_TYPE    Store type\n")
		fmt.Fprintf(os.Stderr, "  GRIDBENCH_STORE_DSN     Relational store DSN\n")
		fmt.Fprintf(os.Stderr, "  GRIDBENCH_STORAGE_TYPE  Report export storage (none, local, s3)\n")
		fmt.Fprintf(os.Stderr, "  GRIDBENCH_REPORT_RETAIN Exported reports to keep (0 keeps all)\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("gridbench version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	// A missing .env is fine; a malformed one is not
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("Failed to load .env: %v", err)
	}

	cfg, err := loadConfig(configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Apply command line flags (highest priority), only those explicitly set
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "points":
			cfg.Points = points
		case "seed":
			cfg.Seed = seed
		case "trials":
			cfg.Workload.Trials = trials
		case "store":
			cfg.Store.Type = config.StoreType(storeType)
		case "dsn":
			cfg.Store.DSN = dsn
		case "out":
			cfg.Report.Dir = outDir
		case "log-level":
			cfg.Log.Level = logLevel
		}
	})

	logging.Init(cfg.Log)

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	ctx, cancel := app.SignalContext(context.Background())
	defer cancel()

	if listReports || showReport != "" {
		if err := browseReports(ctx, application, listReports, showReport); err != nil {
			cancel()
			log.Fatalf("Failed to read reports: %v", err)
		}
		return
	}

	printBanner(application.Config())

	rep, runErr := application.Run(ctx)
	if rep != nil {
		fmt.Println()
		if err := report.WriteTable(os.Stdout, rep); err != nil {
			log.Printf("Failed to print summary: %v", err)
		}
		if path := application.ReportPath(); path != "" {
			fmt.Printf("report: %s\n", path)
		}
	}
	if runErr != nil {
		cancel()
		log.Fatalf("Run failed: %v", runErr)
	}
}

// browseReports lists exported reports or prints the summary of one.
func browseReports(ctx context.Context, application *app.App, list bool, name string) error {
	if list {
		names, err := application.StoredReports(ctx)
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Println(n)
		}
	}
	if name == "" {
		return nil
	}

	rep, err := application.FetchReport(ctx, name)
	if err != nil {
		return err
	}
	fmt.Printf("run %s started %s\n\n", rep.RunID, rep.StartedAt.Format(time.RFC3339))
	return report.WriteTable(os.Stdout, rep)
}

// loadConfig loads configuration from file and environment.
func loadConfig(configFile string) (*config.Config, error) {
	var cfg *config.Config
	var err error

	// Start with defaults or load from file
	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	// Apply environment variables
	config.LoadFromEnv(cfg)

	return cfg, nil
}

// printBanner prints the startup banner with configuration summary.
func printBanner(cfg *config.Config) {
	log.Printf("╔═══════════════════════════════════════════════════════════╗")
	log.Printf("║                      GRIDBENCH                            ║")
	log.Printf("║         Hexagonal vs Square Grid Indexing Benchmark       ║")
	log.Printf("╚═══════════════════════════════════════════════════════════╝")
	log.Printf("")
	log.Printf("Configuration:")
	log.Printf("  Points:       %d (%s, seed %d)", cfg.Points, cfg.Distribution, cfg.Seed)
	log.Printf("  Bounds:       %s", cfg.Bounds)
	log.Printf("  Hex:          resolution %d (parent %d)", cfg.Grid.HexResolution, cfg.Grid.HexParentResolution)
	log.Printf("  Square:       %s° cells (parent %s°)",
		strconv.FormatFloat(cfg.Grid.SquareCellSize, 'f', -1, 64),
		strconv.FormatFloat(cfg.Grid.SquareParentCellSize, 'f', -1, 64))
	log.Printf("  Store:        %s", cfg.Store.Type)
	log.Printf("  Trials:       %d", cfg.Workload.Trials)
	log.Printf("  Report Dir:   %s", cfg.Report.Dir)
	log.Printf("  Export:       %s", cfg.Report.Storage.Type)
	log.Printf("")
}
