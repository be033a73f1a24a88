// Package metrics exposes benchmark samples as Prometheus metrics.
//
// Each run owns a private registry so that repeated runs in one process do
// not collide; the registry is dumped to a node-exporter textfile at the end.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arkilian/gridbench/pkg/types"
)

// Recorder collects per-run metrics. It implements workload.Observer.
type Recorder struct {
	registry *prometheus.Registry

	// operationDuration measures successful trial latency
	operationDuration *prometheus.HistogramVec

	// failedSamples counts trials recorded as failed
	failedSamples *prometheus.CounterVec

	// resultCount tracks the result count of the latest trial
	resultCount *prometheus.GaugeVec

	// droppedPoints is the number of out-of-bounds points per adapter
	droppedPoints *prometheus.GaugeVec
}

// NewRecorder creates a recorder backed by a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		operationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gridbench_operation_duration_seconds",
			Help:    "Duration of timed benchmark trials in seconds",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 14),
		}, []string{"operation", "adapter"}),
		failedSamples: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gridbench_failed_samples_total",
			Help: "Total number of trials recorded as failed",
		}, []string{"operation", "adapter"}),
		resultCount: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gridbench_result_count",
			Help: "Result count of the most recent trial",
		}, []string{"operation", "adapter"}),
		droppedPoints: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gridbench_dropped_points",
			Help: "Number of sampled points outside the adapter bounds",
		}, []string{"adapter"}),
	}
}

// ObserveSample records one timing sample.
func (r *Recorder) ObserveSample(s types.TimingSample) {
	if s.Failed {
		r.failedSamples.WithLabelValues(s.Operation, s.Adapter).Inc()
		return
	}
	r.operationDuration.WithLabelValues(s.Operation, s.Adapter).Observe(s.Elapsed.Seconds())
	r.resultCount.WithLabelValues(s.Operation, s.Adapter).Set(float64(s.ResultCount))
}

// SetDropped records the dropped point count for an adapter.
func (r *Recorder) SetDropped(adapter string, n int) {
	r.droppedPoints.WithLabelValues(adapter).Set(float64(n))
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile dumps the registry in the Prometheus text format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("metrics: failed to create directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("metrics: failed to write textfile: %w", err)
	}
	return nil
}
