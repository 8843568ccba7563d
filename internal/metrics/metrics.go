// Package metrics exposes the pipeline's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics holds the collectors observed by the worker runtime and
// the janitor. All collectors are labeled by queue.
type PipelineMetrics struct {
	JobsProcessed *prometheus.CounterVec
	JobsFailed    *prometheus.CounterVec
	JobsRetried   *prometheus.CounterVec
	JobDuration   *prometheus.HistogramVec
	QueueDepth    *prometheus.GaugeVec
	TrackedNotes  prometheus.Gauge
}

// New registers the pipeline collectors on the registry
func New(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		JobsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skillet_jobs_processed_total",
			Help: "Jobs completed successfully, by queue and entry action.",
		}, []string{"queue", "action"}),
		JobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skillet_jobs_failed_total",
			Help: "Jobs dropped after a fatal or exhausted failure.",
		}, []string{"queue", "action"}),
		JobsRetried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skillet_jobs_retried_total",
			Help: "Job redeliveries scheduled after a transient failure.",
		}, []string{"queue", "action"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "skillet_job_duration_seconds",
			Help:    "Wall time of one job delivery through its pipeline.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"queue"}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "skillet_queue_depth",
			Help: "Jobs waiting per queue, sampled by the janitor.",
		}, []string{"queue"}),
		TrackedNotes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "skillet_tracked_notes",
			Help: "Completion records currently held by the tracker.",
		}),
	}

	reg.MustRegister(
		m.JobsProcessed,
		m.JobsFailed,
		m.JobsRetried,
		m.JobDuration,
		m.QueueDepth,
		m.TrackedNotes,
	)
	return m
}
