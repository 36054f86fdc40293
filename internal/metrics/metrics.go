// Package metrics exposes Prometheus counters and histograms for the
// account configuration pipeline, its discovery probes, and housekeeping.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline run metrics
	ConfigurationRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailclient_configuration_runs_total",
		Help: "Total configuration pipeline runs by outcome",
	}, []string{"outcome"}) // outcome: success, failure, cancelled

	ConfigurationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mailclient_configuration_duration_seconds",
		Help:    "Time taken for a configuration pipeline run to finish",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~256s
	})

	PipelineStep = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailclient_pipeline_step_total",
		Help: "Total pipeline step executions by step name and outcome",
	}, []string{"step", "outcome"})

	PipelineProgress = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mailclient_pipeline_progress",
		Help: "Progress value of the most recently observed pipeline event",
	})

	// Autoconfig/autodiscover probe metrics
	ProbeAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailclient_autoconfig_probe_attempts_total",
		Help: "Total network autoconfig/autodiscover probe attempts by source",
	}, []string{"source"}) // source: provider_db, cache, network (the source that supplied settings)

	ProbeCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailclient_autoconfig_cache_hits_total",
		Help: "Total autoconfig cache hits",
	})

	ProbeCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailclient_autoconfig_cache_misses_total",
		Help: "Total autoconfig cache misses",
	})

	// IMAP/SMTP connect-trial metrics
	ConnectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailclient_connect_attempts_total",
		Help: "Total trial connection attempts by protocol and result",
	}, []string{"protocol", "result"}) // protocol: imap, smtp; result: success, failure

	ConnectDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mailclient_connect_duration_seconds",
		Help:    "Time taken by a single trial connection attempt",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 8),
	}, []string{"protocol"})

	// Housekeeping metrics
	HousekeepingFilesDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailclient_housekeeping_files_deleted_total",
		Help: "Total orphaned blob files deleted by housekeeping",
	})

	HousekeepingRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailclient_housekeeping_runs_total",
		Help: "Total housekeeping runs",
	})

	// Cross-cutting error metrics
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailclient_errors_total",
		Help: "Total errors by component",
	}, []string{"component", "type"})
)

// RecordConfigurationRun records a finished pipeline run's outcome and
// wall-clock duration.
func RecordConfigurationRun(outcome string, durationSeconds float64) {
	ConfigurationRuns.WithLabelValues(outcome).Inc()
	ConfigurationDuration.Observe(durationSeconds)
}

// RecordPipelineStep records one step's execution outcome.
func RecordPipelineStep(step, outcome string) {
	PipelineStep.WithLabelValues(step, outcome).Inc()
}

// RecordProbe records one autoconfig/autodiscover probe attempt.
func RecordProbe(source string) {
	ProbeAttempts.WithLabelValues(source).Inc()
}

// RecordConnect records a single trial connection attempt.
func RecordConnect(protocol string, success bool, durationSeconds float64) {
	result := "success"
	if !success {
		result = "failure"
	}
	ConnectAttempts.WithLabelValues(protocol, result).Inc()
	ConnectDuration.WithLabelValues(protocol).Observe(durationSeconds)
}

// RecordError records an error by originating component and kind.
func RecordError(component, errorType string) {
	Errors.WithLabelValues(component, errorType).Inc()
}
