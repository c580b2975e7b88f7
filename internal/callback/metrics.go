package callback

import "github.com/prometheus/client_golang/prometheus"

var (
	cbReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bapbridge",
		Subsystem: "callback",
		Name:      "received_total",
		Help:      "Inbound callbacks by name and match outcome.",
	}, []string{"callback", "outcome"})

	cbFinalizeErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bapbridge",
		Subsystem: "callback",
		Name:      "finalize_errors_total",
		Help:      "Confirmation finalization failures by effect.",
	}, []string{"effect"})
)

func init() {
	prometheus.MustRegister(cbReceived, cbFinalizeErrors)
}
