package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(candidatesProcessedTotal, stageDurationSeconds, sessionsFinishedTotal) }

var candidatesProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "jury_candidates_processed_total",
		Help: "Candidates processed by the elimination controller, labeled by stage and verdict.",
	},
	[]string{"stage", "verdict"}, // 'advanced', 'eliminated'
)

var stageDurationSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "jury_stage_duration_seconds",
		Help:    "Duration of a full elimination stage.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	},
	[]string{"stage"},
)

var sessionsFinishedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "jury_sessions_finished_total",
		Help: "Elimination sessions reaching a terminal state, labeled by status.",
	},
	[]string{"status"},
)

func IncCandidateProcessed(stage int, advanced bool) {
	verdict := "eliminated"
	if advanced {
		verdict = "advanced"
	}
	candidatesProcessedTotal.WithLabelValues(strconv.Itoa(stage), verdict).Inc()
}

func ObserveStageDuration(stage int, d time.Duration) {
	stageDurationSeconds.WithLabelValues(strconv.Itoa(stage)).Observe(d.Seconds())
}

func IncSessionFinished(status string) {
	sessionsFinishedTotal.WithLabelValues(norm(status)).Inc()
}
