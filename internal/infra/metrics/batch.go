package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(jobsInFlight, jobDurationSeconds) }

var jobsInFlight = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "review_jobs_in_flight",
		Help: "Jobs currently holding an admission slot.",
	},
)

var jobDurationSeconds = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "review_job_duration_seconds",
		Help:    "Wall-clock duration of one job from admission to terminal outcome.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 14), // 1s .. ~2h
	},
)

func JobStarted()  { jobsInFlight.Inc() }
func JobFinished() { jobsInFlight.Dec() }

func ObserveJobDuration(d time.Duration) {
	jobDurationSeconds.Observe(d.Seconds())
}
