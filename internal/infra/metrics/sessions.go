package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(sessionsFinishedTotal, sessionAttemptsTotal) }

var sessionsFinishedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "review_sessions_finished_total",
		Help: "Review jobs that reached a terminal outcome, labeled by status.",
	},
	[]string{"status"}, // 'success', 'failed', 'timed_out', 'invalid'
)

var sessionAttemptsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "review_session_attempts_total",
		Help: "Session attempts started, including retries.",
	},
)

func IncSessionFinished(status string) {
	sessionsFinishedTotal.WithLabelValues(norm(status)).Inc()
}

func IncSessionAttempt() {
	sessionAttemptsTotal.Inc()
}
