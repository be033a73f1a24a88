// Package config provides the immutable run configuration for gridbench.
// A Config is built once (defaults, file, environment, flags), validated, and
// then threaded through sampler, builder, and runner without modification.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	gberr "github.com/arkilian/gridbench/internal/errors"
	"github.com/arkilian/gridbench/internal/logging"
	"github.com/arkilian/gridbench/pkg/types"
)

// StoreType selects the backing store implementation.
type StoreType string

const (
	StoreMemory   StoreType = "memory"
	StoreSQLite   StoreType = "sqlite"
	StorePostgres StoreType = "postgres"
	StoreDuckDB   StoreType = "duckdb"
)

// IsRelational reports whether the store type is backed by database/sql.
func (s StoreType) IsRelational() bool {
	return s == StoreSQLite || s == StorePostgres || s == StoreDuckDB
}

// Distribution names for the coordinate sampler.
const (
	DistributionUniform   = "uniform"
	DistributionClustered = "clustered"
)

// Config holds the configuration of one benchmark run.
type Config struct {
	// DataDir is the base directory for reports, sqlite files, and metrics
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Points is the number of sampled coordinates
	Points int `json:"points" yaml:"points" validate:"gt=0"`

	// Bounds is the sampling and indexing extent
	Bounds types.Bounds `json:"bounds" yaml:"bounds"`

	// Distribution is uniform or clustered
	Distribution string `json:"distribution" yaml:"distribution" validate:"oneof=uniform clustered"`

	// Clusters are the weighted centers used by the clustered distribution
	Clusters []ClusterCenter `json:"clusters" yaml:"clusters" validate:"dive"`

	// Seed drives every random choice in the run
	Seed int64 `json:"seed" yaml:"seed"`

	// Grid holds the per-strategy resolutions
	Grid GridConfig `json:"grid" yaml:"grid"`

	// Dataset holds the synthetic attribute pools
	Dataset DatasetConfig `json:"dataset" yaml:"dataset"`

	// Workload controls phases, trials, and query inputs
	Workload WorkloadConfig `json:"workload" yaml:"workload"`

	// Store selects and configures the backing store
	Store StoreConfig `json:"store" yaml:"store"`

	// Report configures the report artifact
	Report ReportConfig `json:"report" yaml:"report"`

	// Metrics configures the Prometheus textfile dump
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`

	// Log configures the global logger
	Log logging.Config `json:"log" yaml:"log"`
}

// ClusterCenter is one weighted center of the clustered distribution.
type ClusterCenter struct {
	Name   string  `json:"name" yaml:"name"`
	Lat    float64 `json:"lat" yaml:"lat" validate:"gte=-90,lte=90"`
	Lng    float64 `json:"lng" yaml:"lng" validate:"gte=-180,lte=180"`
	Weight float64 `json:"weight" yaml:"weight" validate:"gt=0"`
}

// GridConfig holds the resolution of each strategy. Resolutions are fixed for a run.
type GridConfig struct {
	// HexResolution is the H3 resolution (0-15)
	HexResolution int `json:"hex_resolution" yaml:"hex_resolution" validate:"gte=0,lte=15"`

	// SquareCellSize is the square cell edge in degrees
	SquareCellSize float64 `json:"square_cell_size" yaml:"square_cell_size" validate:"gt=0"`

	// HexParentResolution is the coarser hex resolution used by parent rollups
	HexParentResolution int `json:"hex_parent_resolution" yaml:"hex_parent_resolution" validate:"gte=0,lte=15"`

	// SquareParentCellSize is the coarser square cell edge; must be an integer multiple of SquareCellSize
	SquareParentCellSize float64 `json:"square_parent_cell_size" yaml:"square_parent_cell_size" validate:"gt=0"`
}

// DatasetConfig holds the synthetic attribute pools.
type DatasetConfig struct {
	Categories []string `json:"categories" yaml:"categories" validate:"min=1,dive,required"`
	ValueMin   float64  `json:"value_min" yaml:"value_min"`
	ValueMax   float64  `json:"value_max" yaml:"value_max"`
}

// WorkloadConfig controls the workload battery.
type WorkloadConfig struct {
	// Phases is the ordered subset of phases to run; empty means all
	Phases []string `json:"phases" yaml:"phases"`

	// Trials is the number of timed samples per phase per adapter
	Trials int `json:"trials" yaml:"trials" validate:"gt=0"`

	// RingSize is the neighbor ring radius
	RingSize int `json:"ring_size" yaml:"ring_size" validate:"gte=0"`

	// QueryCount is the number of lookups issued per point/neighbor trial
	QueryCount int `json:"query_count" yaml:"query_count" validate:"gt=0"`

	// BatchSize is the number of records touched per insert/update/delete trial
	BatchSize int `json:"batch_size" yaml:"batch_size" validate:"gt=0"`

	// RangeBoxes are the range query windows; empty derives boxes from Bounds
	RangeBoxes []types.Bounds `json:"range_boxes" yaml:"range_boxes" validate:"dive"`

	// CoverageCenter and CoverageRadiusKm define the circle for the coverage phase
	CoverageCenter   types.GeoPoint `json:"coverage_center" yaml:"coverage_center"`
	CoverageRadiusKm float64        `json:"coverage_radius_km" yaml:"coverage_radius_km" validate:"gt=0"`

	// AggregateMinCount filters cells with fewer records from aggregation results
	AggregateMinCount int `json:"aggregate_min_count" yaml:"aggregate_min_count" validate:"gte=0"`

	// AggregateLimit caps the number of aggregated cells returned (0 = no limit)
	AggregateLimit int `json:"aggregate_limit" yaml:"aggregate_limit" validate:"gte=0"`

	// UpdateFactor multiplies value in the update phase
	UpdateFactor float64 `json:"update_factor" yaml:"update_factor" validate:"gt=0"`
}

// StoreConfig selects and configures the backing store.
type StoreConfig struct {
	// Type is memory, sqlite, postgres, or duckdb
	Type StoreType `json:"type" yaml:"type" validate:"oneof=memory sqlite postgres duckdb"`

	// DSN is the driver connection string; sqlite and duckdb default to a file under DataDir
	DSN string `json:"dsn" yaml:"dsn"`

	// StatementTimeout bounds every relational statement
	StatementTimeout time.Duration `json:"statement_timeout" yaml:"statement_timeout" validate:"gte=0"`

	// MaxOpenConns caps the relational connection pool
	MaxOpenConns int `json:"max_open_conns" yaml:"max_open_conns" validate:"gte=0"`

	// ResetTables clears existing rows when the store opens. It defaults to
	// true because seeding reuses the same record ids on every run.
	ResetTables bool `json:"reset_tables" yaml:"reset_tables"`
}

// ReportConfig configures the report artifact.
type ReportConfig struct {
	// Dir is the local staging directory for encoded reports
	Dir string `json:"dir" yaml:"dir"`

	// Compress frames the JSON report with snappy
	Compress bool `json:"compress" yaml:"compress"`

	// Storage is where finished reports are exported
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Retain is how many exported reports to keep; 0 keeps all
	Retain int `json:"retain" yaml:"retain" validate:"gte=0"`
}

// StorageConfig holds report export storage configuration.
type StorageConfig struct {
	// Type is the storage type: none, local, s3
	Type string `json:"type" yaml:"type" validate:"oneof=none local s3"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	Bucket       string `json:"bucket" yaml:"bucket"`
	Region       string `json:"region" yaml:"region"`
	Endpoint     string `json:"endpoint" yaml:"endpoint"`
	UsePathStyle bool   `json:"use_path_style" yaml:"use_path_style"`
	Prefix       string `json:"prefix" yaml:"prefix"`
}

// MetricsConfig configures metrics output.
type MetricsConfig struct {
	// Textfile is the path of the Prometheus textfile dump; empty disables it
	Textfile string `json:"textfile" yaml:"textfile"`
}

// SeoulClusters are the weighted district centers used by the default clustered distribution.
func SeoulClusters() []ClusterCenter {
	return []ClusterCenter{
		{Name: "gangnam", Lat: 37.5172, Lng: 127.0473, Weight: 0.25},
		{Name: "mapo", Lat: 37.5567, Lng: 126.9241, Weight: 0.20},
		{Name: "jung", Lat: 37.5636, Lng: 126.9826, Weight: 0.15},
		{Name: "seocho", Lat: 37.4837, Lng: 127.0324, Weight: 0.15},
		{Name: "songpa", Lat: 37.5133, Lng: 127.1000, Weight: 0.10},
		{Name: "yeongdeungpo", Lat: 37.5264, Lng: 126.8963, Weight: 0.10},
		{Name: "yongsan", Lat: 37.5384, Lng: 126.9654, Weight: 0.05},
	}
}

// DefaultRangeBoxes are three 0.01-degree windows around Gangnam, Hongdae, and Jamsil.
func DefaultRangeBoxes() []types.Bounds {
	return []types.Bounds{
		{MinLat: 37.495, MinLng: 127.025, MaxLat: 37.505, MaxLng: 127.035},
		{MinLat: 37.550, MinLng: 126.920, MaxLat: 37.560, MaxLng: 126.930},
		{MinLat: 37.510, MinLng: 127.095, MaxLat: 37.520, MaxLng: 127.105},
	}
}

// DefaultConfig returns the default configuration: a Seoul-sized run on in-memory stores.
func DefaultConfig() *Config {
	return &Config{
		DataDir:      "./data/gridbench",
		Points:       10000,
		Bounds:       types.Bounds{MinLat: 37.4, MinLng: 126.8, MaxLat: 37.7, MaxLng: 127.2},
		Distribution: DistributionClustered,
		Clusters:     SeoulClusters(),
		Seed:         42,
		Grid: GridConfig{
			HexResolution:        8,
			SquareCellSize:       0.005,
			HexParentResolution:  6,
			SquareParentCellSize: 0.04,
		},
		Dataset: DatasetConfig{
			Categories: []string{"restaurant", "cafe", "retail", "office", "hospital", "school", "park", "bank"},
			ValueMin:   10,
			ValueMax:   1000,
		},
		Workload: WorkloadConfig{
			Trials:            5,
			RingSize:          1,
			QueryCount:        100,
			BatchSize:         100,
			RangeBoxes:        DefaultRangeBoxes(),
			CoverageCenter:    types.GeoPoint{Lat: 37.5665, Lng: 126.9780},
			CoverageRadiusKm:  1.0,
			AggregateMinCount: 5,
			AggregateLimit:    100,
			UpdateFactor:      1.1,
		},
		Store: StoreConfig{
			Type:             StoreMemory,
			StatementTimeout: 30 * time.Second,
			MaxOpenConns:     4,
			ResetTables:      true,
		},
		Report: ReportConfig{
			Storage: StorageConfig{
				Type: "local",
			},
		},
		Log: logging.DefaultConfig(),
	}
}

// Resolve fills derived paths from DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/gridbench"
	}
	if c.Report.Dir == "" {
		c.Report.Dir = filepath.Join(c.DataDir, "reports")
	}
	if c.Report.Storage.Type == "local" && c.Report.Storage.Path == "" {
		c.Report.Storage.Path = filepath.Join(c.DataDir, "export")
	}
	if c.Store.DSN == "" {
		switch c.Store.Type {
		case StoreSQLite:
			c.Store.DSN = "file:" + filepath.Join(c.DataDir, "gridbench.db") + "?_busy_timeout=5000"
		case StoreDuckDB:
			c.Store.DSN = filepath.Join(c.DataDir, "gridbench.duckdb")
		}
	}
	if len(c.Clusters) == 0 && c.Distribution == DistributionClustered {
		c.Clusters = SeoulClusters()
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags and cross-field constraints. Every failure is an
// InvalidParameter error so callers can fail fast before any run starts.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return gberr.InvalidParameterCause("invalid configuration", err)
	}

	if err := c.Bounds.Validate(); err != nil {
		return gberr.InvalidParameterCause("invalid bounds", err)
	}

	for i, box := range c.Workload.RangeBoxes {
		if err := box.Validate(); err != nil {
			return gberr.InvalidParameterCause(fmt.Sprintf("invalid range box %d", i), err)
		}
	}

	if err := c.Workload.CoverageCenter.Validate(); err != nil {
		return gberr.InvalidParameterCause("invalid coverage center", err)
	}

	if c.Distribution == DistributionClustered && len(c.Clusters) == 0 {
		return gberr.InvalidParameter("clustered distribution requires at least one cluster center")
	}

	if c.Dataset.ValueMin > c.Dataset.ValueMax {
		return gberr.InvalidParameter("dataset.value_min (%v) must not exceed dataset.value_max (%v)",
			c.Dataset.ValueMin, c.Dataset.ValueMax)
	}

	if c.Grid.HexParentResolution > c.Grid.HexResolution {
		return gberr.InvalidParameter("grid.hex_parent_resolution (%d) must not exceed grid.hex_resolution (%d)",
			c.Grid.HexParentResolution, c.Grid.HexResolution)
	}

	ratio := c.Grid.SquareParentCellSize / c.Grid.SquareCellSize
	if ratio < 1 || !nearInteger(ratio) {
		return gberr.InvalidParameter("grid.square_parent_cell_size (%v) must be an integer multiple of grid.square_cell_size (%v)",
			c.Grid.SquareParentCellSize, c.Grid.SquareCellSize)
	}

	if c.Store.Type == StorePostgres && c.Store.DSN == "" {
		return gberr.InvalidParameter("store.dsn is required when store type is postgres")
	}

	if c.Report.Storage.Type == "s3" && c.Report.Storage.S3.Bucket == "" {
		return gberr.InvalidParameter("report.storage.s3.bucket is required when storage type is s3")
	}

	if c.Log.Level != "" && !logging.ValidLevel(c.Log.Level) {
		return gberr.InvalidParameter("log.level %q is not a known level", c.Log.Level)
	}

	return nil
}

func nearInteger(f float64) bool {
	r := float64(int64(f + 0.5))
	d := f - r
	return d < 1e-9 && d > -1e-9
}

// LoadFromFile loads configuration from a YAML or JSON file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv overlays environment variables using the GRIDBENCH_ prefix.
// Unparseable numeric values are ignored and leave the current value in place.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("GRIDBENCH_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("GRIDBENCH_POINTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Points = n
		}
	}
	if v := os.Getenv("GRIDBENCH_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Seed = n
		}
	}
	if v := os.Getenv("GRIDBENCH_DISTRIBUTION"); v != "" {
		cfg.Distribution = v
	}

	// Grid configuration
	if v := os.Getenv("GRIDBENCH_HEX_RESOLUTION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Grid.HexResolution = n
		}
	}
	if v := os.Getenv("GRIDBENCH_SQUARE_CELL_SIZE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Grid.SquareCellSize = f
		}
	}

	// Workload configuration
	if v := os.Getenv("GRIDBENCH_TRIALS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workload.Trials = n
		}
	}
	if v := os.Getenv("GRIDBENCH_RING_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workload.RingSize = n
		}
	}
	if v := os.Getenv("GRIDBENCH_PHASES"); v != "" {
		cfg.Workload.Phases = splitList(v)
	}

	// Store configuration
	if v := os.Getenv("GRIDBENCH_STORE_TYPE"); v != "" {
		cfg.Store.Type = StoreType(v)
	}
	if v := os.Getenv("GRIDBENCH_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("GRIDBENCH_STORE_STATEMENT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Store.StatementTimeout = d
		}
	}
	if v := os.Getenv("GRIDBENCH_STORE_RESET_TABLES"); v != "" {
		cfg.Store.ResetTables = v == "true" || v == "1"
	}

	// Report configuration
	if v := os.Getenv("GRIDBENCH_REPORT_DIR"); v != "" {
		cfg.Report.Dir = v
	}
	if v := os.Getenv("GRIDBENCH_REPORT_COMPRESS"); v != "" {
		cfg.Report.Compress = v == "true" || v == "1"
	}
	if v := os.Getenv("GRIDBENCH_REPORT_RETAIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Report.Retain = n
		}
	}
	if v := os.Getenv("GRIDBENCH_STORAGE_TYPE"); v != "" {
		cfg.Report.Storage.Type = v
	}
	if v := os.Getenv("GRIDBENCH_STORAGE_PATH"); v != "" {
		cfg.Report.Storage.Path = v
	}
	if v := os.Getenv("GRIDBENCH_S3_BUCKET"); v != "" {
		cfg.Report.Storage.S3.Bucket = v
	}
	if v := os.Getenv("GRIDBENCH_S3_REGION"); v != "" {
		cfg.Report.Storage.S3.Region = v
	}
	if v := os.Getenv("GRIDBENCH_S3_ENDPOINT"); v != "" {
		cfg.Report.Storage.S3.Endpoint = v
	}

	// Observability
	if v := os.Getenv("GRIDBENCH_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("GRIDBENCH_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("GRIDBENCH_METRICS_TEXTFILE"); v != "" {
		cfg.Metrics.Textfile = v
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		c.Report.Dir,
	}
	if c.Report.Storage.Type == "local" {
		dirs = append(dirs, c.Report.Storage.Path)
	}
	if c.Metrics.Textfile != "" {
		dirs = append(dirs, filepath.Dir(c.Metrics.Textfile))
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// HexResolution returns the hex resolution as a types.Resolution.
func (c *Config) HexResolution() types.Resolution {
	return types.Resolution(c.Grid.HexResolution)
}

// SquareResolution returns the square cell size as a types.Resolution.
func (c *Config) SquareResolution() types.Resolution {
	return types.Resolution(c.Grid.SquareCellSize)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
