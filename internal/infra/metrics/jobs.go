package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(jobsProcessedTotal, jobDurationSeconds, jobsReclaimedTotal, jobRetriesTotal) }

var jobsProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "analysis_jobs_processed_total",
		Help: "Total number of analysis jobs processed, labeled by type and terminal status.",
	},
	[]string{"type", "status"}, // 'completed', 'failed'
)

var jobDurationSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "analysis_job_duration_seconds",
		Help:    "Wall-clock duration of analysis jobs from claim to terminal write.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	},
	[]string{"type"},
)

var jobsReclaimedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "analysis_jobs_reclaimed_total",
		Help: "Jobs force-failed by the stuck-job reclaimer, labeled by type.",
	},
	[]string{"type"},
)

var jobRetriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "analysis_job_retries_total",
		Help: "Transient-failure retries performed inside the worker, labeled by type.",
	},
	[]string{"type"},
)

func IncJobProcessed(jobType, status string) {
	jobsProcessedTotal.WithLabelValues(norm(jobType), norm(status)).Inc()
}

func ObserveJobDuration(jobType string, d time.Duration) {
	jobDurationSeconds.WithLabelValues(norm(jobType)).Observe(d.Seconds())
}

func IncJobReclaimed(jobType string) {
	jobsReclaimedTotal.WithLabelValues(norm(jobType)).Inc()
}

func IncJobRetry(jobType string) {
	jobRetriesTotal.WithLabelValues(norm(jobType)).Inc()
}
