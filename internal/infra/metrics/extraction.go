package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(extractionFailuresTotal) }

var extractionFailuresTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "transcript_extraction_failures_total",
		Help: "Transcript extraction failures on finished sessions, labeled by kind.",
	},
	[]string{"kind"},
)

func IncExtractionFailure(kind string) {
	extractionFailuresTotal.WithLabelValues(norm(kind)).Inc()
}
