package gateway

import "github.com/prometheus/client_golang/prometheus"

var (
	reqCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bapbridge",
		Subsystem: "gateway",
		Name:      "requests_completed_total",
		Help:      "Actions that resolved with a successful callback.",
	}, []string{"action"})

	reqRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bapbridge",
		Subsystem: "gateway",
		Name:      "requests_rejected_total",
		Help:      "Actions that failed, by stage.",
	}, []string{"action", "stage"})

	reqDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bapbridge",
		Subsystem: "gateway",
		Name:      "request_duration_seconds",
		Help:      "End-to-end action latency including the callback wait.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"action"})
)

func init() {
	prometheus.MustRegister(reqCompleted, reqRejected, reqDuration)
}
