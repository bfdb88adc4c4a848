// Package observability provides build metrics and tracing.
package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics recorded during a build
type Metrics struct {
	registry *prometheus.Registry

	targetBuildsTotal *prometheus.CounterVec
	targetDuration    *prometheus.HistogramVec
	artifactSizeBytes *prometheus.GaugeVec
	lastRunTimestamp  prometheus.Gauge
}

// NewMetrics creates the build metrics on a private registry so that
// separate runs in one process do not collide.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		targetBuildsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "distbuild_target_builds_total",
				Help: "Total number of target builds by outcome",
			},
			[]string{"target", "format", "status"},
		),
		targetDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "distbuild_target_duration_seconds",
				Help:    "Time spent compiling and writing one target",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"target"},
		),
		artifactSizeBytes: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "distbuild_artifact_size_bytes",
				Help: "Size of the last emitted artifact",
			},
			[]string{"target", "kind"},
		),
		lastRunTimestamp: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "distbuild_last_run_timestamp_seconds",
				Help: "Unix time at which the last build finished",
			},
		),
	}
}

// RecordTarget records the outcome of building one target
func (m *Metrics) RecordTarget(target, format string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.targetBuildsTotal.WithLabelValues(target, format, status).Inc()
	m.targetDuration.WithLabelValues(target).Observe(duration.Seconds())
}

// RecordArtifact records the size of an emitted artifact
func (m *Metrics) RecordArtifact(target, kind string, bytes int) {
	m.artifactSizeBytes.WithLabelValues(target, kind).Set(float64(bytes))
}

// MarkRunFinished stamps the end of a build run
func (m *Metrics) MarkRunFinished(at time.Time) {
	m.lastRunTimestamp.Set(float64(at.Unix()))
}

// Registry returns the registry holding the build metrics
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the metrics in the textfile collector format
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
