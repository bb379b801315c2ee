package backend

import "github.com/prometheus/client_golang/prometheus"

var (
	backendState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ragd",
			Subsystem: "backend",
			Name:      "state",
			Help:      "Backend state (0=stopped, 1=idle, 2=running, 3=error)",
		},
		[]string{"backend"},
	)

	streamFragments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragd",
			Subsystem: "stream",
			Name:      "fragments_total",
			Help:      "Generated fragments delivered to pollers",
		},
		[]string{"backend"},
	)
)

func init() {
	prometheus.MustRegister(backendState, streamFragments)
}
