package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(agentCallsTotal, agentCallRetriesTotal) }

var agentCallsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "agent_api_calls_total",
		Help: "Calls against the remote agent API, labeled by operation and result.",
	},
	[]string{"op", "result"}, // op: 'start', 'status', 'messages'; result: 'ok', 'error'
)

var agentCallRetriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "agent_api_call_retries_total",
		Help: "In-place retries of transient agent API call failures.",
	},
	[]string{"op"},
)

func IncAgentCall(op string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	agentCallsTotal.WithLabelValues(norm(op), result).Inc()
}

func IncAgentCallRetry(op string) {
	agentCallRetriesTotal.WithLabelValues(norm(op)).Inc()
}
