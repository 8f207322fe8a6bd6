package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiapx_gif_jobs_processed_total",
		Help: "Total number of GIF conversion jobs processed, by status",
	}, []string{"status"})

	JobProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fiapx_gif_job_processing_duration_seconds",
		Help:    "Duration of each stage of the GIF conversion pipeline",
		Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	ConversionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fiapx_gif_conversion_duration_seconds",
		Help:    "Time spent collecting and encoding frames, by strategy",
		Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
	}, []string{"strategy"})

	FramesCollectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiapx_gif_frames_collected_total",
		Help: "Frame requests by strategy and outcome (succeeded, failed, missing)",
	}, []string{"strategy", "outcome"})

	PartialResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiapx_gif_partial_results_total",
		Help: "Collections released with fewer frames than requested",
	}, []string{"strategy"})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fiapx_gif_active_workers",
		Help: "Number of workers currently converting a video",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiapx_gif_retry_total",
		Help: "Total number of retries",
	}, []string{"attempt"})
)
