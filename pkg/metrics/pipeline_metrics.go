// Package metrics provides Prometheus metrics for monitoring the media
// segmentation pipeline.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// taskTotal records the number of tasks reaching a terminal status.
	// Labels:
	//   - status: Terminal task status ("completed", "failed")
	taskTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_tasks_total",
			Help: "Total number of tasks reaching a terminal status",
		},
		[]string{"status"},
	)

	// stageDuration records the duration of individual pipeline stages per file.
	// Labels:
	//   - stage: Pipeline stage ("extract", "transcribe", "align", "segment")
	// Buckets: 0.1s up to 10 minutes; transcription of long files dominates.
	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"stage"},
	)

	// acceleratorJobTotal records inference jobs per accelerator worker.
	// Labels:
	//   - worker: Worker identifier (e.g., "0", "1")
	//   - status: Job outcome ("success", "failed")
	acceleratorJobTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accelerator_jobs_total",
			Help: "Total number of inference jobs per accelerator worker",
		},
		[]string{"worker", "status"},
	)

	// parserFallbackTotal records which parser stage produced the accepted
	// segmentation. Stage "schema" is the happy path; "synthetic" means every
	// generation attempt failed and equal-length segments were synthesized.
	// Labels:
	//   - stage: Parse stage ("schema", "repair", "retry", "synthetic")
	parserFallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "segmentation_parser_stage_total",
			Help: "Total number of segmentations accepted per parser fallback stage",
		},
		[]string{"stage"},
	)

	// storeEvictionTotal records entries removed by the task store reaper.
	// Labels:
	//   - reason: Eviction reason ("ttl", "capacity")
	storeEvictionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_store_evictions_total",
			Help: "Total number of task store entries removed by the reaper",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(taskTotal)
	prometheus.MustRegister(stageDuration)
	prometheus.MustRegister(acceleratorJobTotal)
	prometheus.MustRegister(parserFallbackTotal)
	prometheus.MustRegister(storeEvictionTotal)
}

// RecordTask records a task reaching a terminal status ("completed"/"failed").
func RecordTask(status string) {
	taskTotal.WithLabelValues(status).Inc()
}

// RecordStageDuration records the duration of one pipeline stage for one file.
func RecordStageDuration(stage string, durationSeconds float64) {
	stageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordAcceleratorJob records one inference job outcome for a worker.
func RecordAcceleratorJob(worker, status string) {
	acceleratorJobTotal.WithLabelValues(worker, status).Inc()
}

// RecordParserStage records which fallback stage produced the accepted
// segmentation ("schema", "repair", "retry", "synthetic").
func RecordParserStage(stage string) {
	parserFallbackTotal.WithLabelValues(stage).Inc()
}

// RecordEviction records a reaper eviction ("ttl" or "capacity").
func RecordEviction(reason string) {
	storeEvictionTotal.WithLabelValues(reason).Inc()
}
