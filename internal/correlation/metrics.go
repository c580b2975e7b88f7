package correlation

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	corPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "bapbridge",
		Subsystem: "correlation",
		Name:      "pending",
		Help:      "Number of currently pending correlations.",
	})

	corOpened = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bapbridge",
		Subsystem: "correlation",
		Name:      "opened_total",
		Help:      "Total correlations opened.",
	})

	corResolved = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bapbridge",
		Subsystem: "correlation",
		Name:      "resolved_total",
		Help:      "Total correlations resolved by a matching callback.",
	})

	corCancelled = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bapbridge",
		Subsystem: "correlation",
		Name:      "cancelled_total",
		Help:      "Total correlations cancelled before any callback arrived.",
	})

	corExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bapbridge",
		Subsystem: "correlation",
		Name:      "expired_total",
		Help:      "Total correlations that timed out waiting for a callback.",
	})
)

func init() {
	prometheus.MustRegister(
		corPending,
		corOpened,
		corResolved,
		corCancelled,
		corExpired,
	)
}
